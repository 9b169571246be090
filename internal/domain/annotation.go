package domain

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/domain/moderation"
)

// Annotator describes an image: caption, labels, dominant colors and
// safe-search likelihoods, in one provider call.
type Annotator interface {
	Annotate(ctx context.Context, ref image.Ref) (Annotation, error)
}

// Annotation is everything an Annotator derives from an image.
// Moderation is nil when the provider returned no safe-search block.
type Annotation struct {
	Description string
	Labels      []string
	Colors      []image.ColorWeight
	Moderation  moderation.Scores
}

// IsEmpty reports whether the provider returned nothing usable.
func (a *Annotation) IsEmpty() bool {
	return a.Description == "" && len(a.Labels) == 0 && len(a.Colors) == 0 && a.Moderation == nil
}
