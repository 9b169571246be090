package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// guard holds what every instrumented provider shares.
// Transport metrics (requests, duration, tokens) are recorded in the
// transport packages; this layer owns budget tracking and logging.
type guard struct {
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

func (g *guard) check(ctx context.Context, op string) error {
	if g.budget == nil {
		return nil
	}
	if err := g.budget.Check(ctx); err != nil {
		g.logger.Error("Budget exceeded",
			zap.String("provider", g.provider),
			zap.String("model", g.model),
			zap.String("op", op),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (g *guard) record(tokens int) {
	if g.budget == nil || tokens <= 0 {
		return
	}
	g.budget.Record(int64(tokens))
	remaining := metrics.ProviderBudgetTokensRemaining
	remaining.WithLabelValues(g.provider, "daily").Set(float64(g.budget.RemainingDaily()))
	remaining.WithLabelValues(g.provider, "monthly").Set(float64(g.budget.RemainingMonthly()))
}

func (g *guard) failed(op string, duration time.Duration, err error) {
	g.logger.Error("Provider request failed",
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.String("op", op),
		zap.Duration("duration", duration),
		zap.Error(err),
	)
}

// InstrumentedText wraps a TextEmbedder with budget enforcement and logging.
type InstrumentedText struct {
	inner domain.TextEmbedder
	guard
}

// NewInstrumentedText wraps a text embedder with budget and observability.
func NewInstrumentedText(
	inner domain.TextEmbedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedText {
	return &InstrumentedText{
		inner: inner,
		guard: guard{provider: provider, model: model, budget: budget, logger: logger},
	}
}

// EmbedText checks budget, delegates to the inner embedder, and records usage.
func (p *InstrumentedText) EmbedText(ctx context.Context, text string, dim int) (domain.EmbeddingResult, error) {
	if err := p.check(ctx, "embed_text"); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.EmbedText(ctx, text, dim)
	duration := time.Since(start)
	if err != nil {
		p.failed("embed_text", duration, err)
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	p.record(result.TotalTokens)
	domain.TokenUsageFromContext(ctx).Add(result.TotalTokens)
	p.logger.Debug("Text embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// InstrumentedImage wraps an ImageEmbedder with budget enforcement and logging.
type InstrumentedImage struct {
	inner domain.ImageEmbedder
	guard
}

// NewInstrumentedImage wraps an image embedder with budget and observability.
func NewInstrumentedImage(
	inner domain.ImageEmbedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedImage {
	return &InstrumentedImage{
		inner: inner,
		guard: guard{provider: provider, model: model, budget: budget, logger: logger},
	}
}

// EmbedImage checks budget, delegates to the inner embedder, and records usage.
func (p *InstrumentedImage) EmbedImage(ctx context.Context, ref image.Ref, dim int) (domain.EmbeddingResult, error) {
	if err := p.check(ctx, "embed_image"); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.EmbedImage(ctx, ref, dim)
	duration := time.Since(start)
	if err != nil {
		p.failed("embed_image", duration, err)
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: %w", err)
	}

	p.record(result.TotalTokens)
	domain.TokenUsageFromContext(ctx).Add(result.TotalTokens)
	p.logger.Debug("Image embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.String("uri", ref.URI()),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
	)
	return result, nil
}

// InstrumentedAnnotator wraps an Annotator with budget enforcement and logging.
type InstrumentedAnnotator struct {
	inner domain.Annotator
	guard
}

// NewInstrumentedAnnotator wraps an annotator with budget and observability.
func NewInstrumentedAnnotator(
	inner domain.Annotator, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedAnnotator {
	return &InstrumentedAnnotator{
		inner: inner,
		guard: guard{provider: provider, model: model, budget: budget, logger: logger},
	}
}

// Annotate checks budget and delegates to the inner annotator.
func (p *InstrumentedAnnotator) Annotate(ctx context.Context, ref image.Ref) (domain.Annotation, error) {
	if err := p.check(ctx, "annotate"); err != nil {
		return domain.Annotation{}, err
	}

	start := time.Now()
	ann, err := p.inner.Annotate(ctx, ref)
	duration := time.Since(start)
	if err != nil {
		p.failed("annotate", duration, err)
		return domain.Annotation{}, fmt.Errorf("annotate: %w", err)
	}

	p.logger.Debug("Annotation completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.String("uri", ref.URI()),
		zap.Duration("duration", duration),
		zap.Int("labels", len(ann.Labels)),
		zap.Int("colors", len(ann.Colors)),
		zap.Bool("moderation", ann.Moderation != nil),
	)
	return ann, nil
}
