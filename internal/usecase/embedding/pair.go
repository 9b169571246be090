package embedding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// Pair combines a text and an image embedder into a domain.PairEmbedder.
// Either side may be nil; its kind then always comes back empty.
type Pair struct {
	text   domain.TextEmbedder
	image  domain.ImageEmbedder
	logger *zap.Logger
}

// NewPair creates a pair embedder.
func NewPair(text domain.TextEmbedder, img domain.ImageEmbedder, logger *zap.Logger) *Pair {
	return &Pair{text: text, image: img, logger: logger}
}

// EmbedPair requests the wanted kinds in parallel. A failure on one side
// leaves that vector empty; an error is returned only when every attempted
// call failed.
func (p *Pair) EmbedPair(ctx context.Context, req domain.PairRequest) (domain.VectorPair, error) {
	if p.text == nil && p.image == nil {
		return domain.VectorPair{}, fmt.Errorf("pair embedder: %w", domain.ErrNotConfigured)
	}

	var (
		out       domain.VectorPair
		g         errgroup.Group
		textErr   error
		imageErr  error
		attempted int
	)

	if p.text != nil && req.Wants(image.KindText) && req.Text != "" {
		attempted++
		g.Go(func() error {
			res, err := p.text.EmbedText(ctx, req.Text, req.Dim)
			if err != nil {
				textErr = err
				return nil
			}
			out.Text = res.Embedding
			return nil
		})
	}
	if p.image != nil && req.Wants(image.KindImage) {
		attempted++
		g.Go(func() error {
			res, err := p.image.EmbedImage(ctx, req.Ref, req.Dim)
			if err != nil {
				imageErr = err
				return nil
			}
			out.Image = res.Embedding
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range []error{textErr, imageErr} {
		if err != nil {
			failed++
		}
	}
	if attempted > 0 && failed == attempted {
		return domain.VectorPair{}, errors.Join(textErr, imageErr)
	}
	if failed > 0 {
		p.logger.Warn("Embedding pair partially failed",
			zap.Int("dim", req.Dim),
			zap.NamedError("text_error", textErr),
			zap.NamedError("image_error", imageErr),
		)
	}
	return out, nil
}
