package enrich

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/imagedex/internal/domain/enrichment"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/logger"
	"github.com/kailas-cloud/imagedex/internal/metrics"
)

// DefaultPipeline labels metrics when no pipeline name is configured.
const DefaultPipeline = "rehydrate"

// Service runs incremental enrichment passes over the image store.
type Service struct {
	store     Store
	cursor    CursorStore
	assoc     AssociationLookup
	annotator Annotator
	embedder  PairEmbedder
	dims      []int
	pipeline  string
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	backoff   gax.Backoff
}

// New creates an enrichment service. annotator and embedder may be nil when
// the corresponding provider is disabled; the affected fields stay missing.
func New(
	store Store, cursor CursorStore,
	annotator Annotator, embedder PairEmbedder, dims []int,
) *Service {
	d := slices.Clone(dims)
	slices.Sort(d)
	return &Service{
		store:     store,
		cursor:    cursor,
		annotator: annotator,
		embedder:  embedder,
		dims:      slices.Compact(d),
		pipeline:  DefaultPipeline,
		now:       time.Now,
		sleep:     gax.Sleep,
		backoff:   defaultBackoff,
	}
}

// WithAssociations enables company/album resolution.
func (s *Service) WithAssociations(a AssociationLookup) *Service {
	s.assoc = a
	return s
}

// WithPipelineName sets the name used in metrics and logs.
func (s *Service) WithPipelineName(name string) *Service {
	if name != "" {
		s.pipeline = name
	}
	return s
}

// WithClock overrides the time source used for TimeUpdated.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithBackoff overrides retry pacing. sleep may be nil to keep gax.Sleep.
func (s *Service) WithBackoff(bo gax.Backoff, sleep func(context.Context, time.Duration) error) *Service {
	s.backoff = bo
	if sleep != nil {
		s.sleep = sleep
	}
	return s
}

// Run processes pages from the persisted cursor until the store is drained,
// MaxPages is reached, or ctx is cancelled. Record-level problems never abort
// the run; page fetch and cursor errors do. The cursor only advances after
// every record of a page has finished.
func (s *Service) Run(ctx context.Context, opts Options) (report Report, err error) {
	opts = opts.withDefaults()
	start := time.Now()
	report.RunID = uuid.NewString()

	ctx = logger.With(ctx, zap.String("run_id", report.RunID), zap.String("pipeline", s.pipeline))
	log := logger.FromContext(ctx)

	defer func() {
		report.Duration = time.Since(start)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.EnrichRunDuration.WithLabelValues(s.pipeline, status).Observe(report.Duration.Seconds())
		log.Info("Enrichment run finished",
			zap.String("status", status),
			zap.String("start_cursor", report.StartCursor),
			zap.String("cursor", report.Cursor),
			zap.Int("pages", report.Pages),
			zap.Int("processed", report.Processed),
			zap.Int("enriched", report.Enriched),
			zap.Int("partial", report.Partial),
			zap.Int("unchanged", report.Unchanged),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Bool("drained", report.Drained),
			zap.Duration("duration", report.Duration),
			zap.Error(err),
		)
	}()

	if opts.ResetCursor {
		if err := s.cursor.Clear(ctx); err != nil {
			return report, fmt.Errorf("reset cursor: %w", err)
		}
	}
	cursor, err := s.cursor.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load cursor: %w", err)
	}
	report.StartCursor = cursor
	report.Cursor = cursor

	for opts.MaxPages == 0 || report.Pages < opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := s.fetchPage(ctx, cursor, opts)
		if err != nil {
			return report, fmt.Errorf("fetch page after %q: %w", cursor, err)
		}

		for _, res := range s.processPage(ctx, page.Records, opts) {
			report.add(res)
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Pages++
		metrics.EnrichPagesTotal.WithLabelValues(s.pipeline).Inc()

		next := page.Next()
		if next == "" {
			report.Drained = true
			if opts.WrapAround {
				if err := s.cursor.Clear(ctx); err != nil {
					return report, fmt.Errorf("clear cursor: %w", err)
				}
				report.Cursor = ""
				return report, nil
			}
			if page.Cursor != "" && page.Cursor != cursor {
				if err := s.cursor.Save(ctx, page.Cursor); err != nil {
					return report, fmt.Errorf("save cursor: %w", err)
				}
				report.Cursor = page.Cursor
			}
			return report, nil
		}

		if err := s.cursor.Save(ctx, next); err != nil {
			return report, fmt.Errorf("save cursor: %w", err)
		}
		cursor = next
		report.Cursor = next
		log.Debug("Page completed", zap.Int("page", report.Pages), zap.String("cursor", next))
	}
	return report, nil
}

func (s *Service) fetchPage(ctx context.Context, cursor string, opts Options) (image.Page, error) {
	var page image.Page
	err := s.retryTransient(ctx, "page", opts.StoreRetries, func() error {
		pctx, cancel := context.WithTimeout(ctx, opts.StoreTimeout)
		defer cancel()
		var err error
		page, err = s.store.Page(pctx, cursor, opts.BatchSize)
		return err
	})
	return page, err
}

// processPage enriches every record of a page. Records that were not started
// because ctx was cancelled produce no result.
func (s *Service) processPage(ctx context.Context, records []image.Record, opts Options) []enrichment.Result {
	results := make([]enrichment.Result, len(records))
	done := make([]bool, len(records))

	if opts.Concurrency <= 1 {
		for i := range records {
			if ctx.Err() != nil {
				break
			}
			results[i] = s.processRecord(ctx, records[i], opts)
			done[i] = true
		}
	} else {
		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i := range records {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				results[i] = s.processRecord(ctx, records[i], opts)
				done[i] = true
				return nil
			})
		}
		_ = g.Wait()
	}

	out := results[:0]
	for i, res := range results {
		if done[i] {
			out = append(out, res)
		}
	}
	return out
}

func (s *Service) observe(ctx context.Context, res enrichment.Result) {
	metrics.EnrichRecordsTotal.WithLabelValues(s.pipeline, string(res.Status())).Inc()

	log := logger.FromContext(ctx)
	switch res.Status() {
	case enrichment.StatusFailed:
		log.Warn("Record failed",
			zap.String("image_id", res.ID()),
			zap.String("reason", res.Reason()),
			zap.Error(res.Err()),
		)
	case enrichment.StatusSkipped:
		log.Info("Record skipped",
			zap.String("image_id", res.ID()),
			zap.String("reason", res.Reason()),
		)
	case enrichment.StatusPartial:
		log.Info("Record partially enriched",
			zap.String("image_id", res.ID()),
			zap.Strings("fields", res.Fields()),
			zap.String("reason", res.Reason()),
		)
	case enrichment.StatusEnriched:
		log.Debug("Record enriched",
			zap.String("image_id", res.ID()),
			zap.Strings("fields", res.Fields()),
		)
	}
}
