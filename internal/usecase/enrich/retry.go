package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/metrics"
)

// defaultBackoff paces retries of transient store failures.
var defaultBackoff = gax.Backoff{
	Initial:    200 * time.Millisecond,
	Max:        5 * time.Second,
	Multiplier: 2,
}

// retryTransient calls fn until it succeeds, fails permanently, or retries
// are exhausted. Only errors wrapping domain.ErrTransient are retried.
func (s *Service) retryTransient(ctx context.Context, op string, retries int, fn func() error) error {
	bo := s.backoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrTransient) || attempt >= retries {
			return err
		}
		metrics.EnrichStoreRetriesTotal.WithLabelValues(s.pipeline, op).Inc()
		if serr := s.sleep(ctx, bo.Pause()); serr != nil {
			return err
		}
	}
}
