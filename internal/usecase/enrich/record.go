package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/enrichment"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/domain/moderation"
	"github.com/kailas-cloud/imagedex/internal/logger"
)

// processRecord fills whatever rec is missing and merges the difference.
// It never returns an error; every problem ends up in the result.
func (s *Service) processRecord(ctx context.Context, rec image.Record, opts Options) enrichment.Result {
	res := s.enrichRecord(ctx, rec, opts)
	s.observe(ctx, res)
	return res
}

func (s *Service) enrichRecord(ctx context.Context, rec image.Record, opts Options) enrichment.Result {
	if !image.ValidID(rec.ID) {
		return enrichment.NewFailed(rec.ID, fmt.Errorf("%w: %q", domain.ErrInvalidID, rec.ID))
	}
	ctx = logger.With(ctx, zap.String("image_id", rec.ID))

	var (
		patch   image.Patch
		reasons []string
	)

	s.attachAssociation(ctx, &rec, &patch)

	missing := image.MissingFields(&rec, s.dims)

	if missing.NeedsAnnotation() {
		reasons = append(reasons, s.annotate(ctx, &rec, &patch, missing, opts)...)
	}

	if len(missing.Vectors) > 0 {
		requested, obtained, why := s.embed(ctx, &rec, &patch, missing, opts)
		reasons = append(reasons, why...)
		if requested > 0 && obtained == 0 {
			return enrichment.NewSkipped(rec.ID, strings.Join(reasons, "; "))
		}
	}

	if patch.IsEmpty() {
		if len(reasons) > 0 {
			return enrichment.NewSkipped(rec.ID, strings.Join(reasons, "; "))
		}
		return enrichment.NewUnchanged(rec.ID)
	}

	now := s.now()
	if now.Before(rec.TimeCreated) {
		now = rec.TimeCreated
	}
	patch.TimeUpdated = &now

	if err := s.merge(ctx, rec.ID, patch, opts); err != nil {
		return enrichment.NewFailed(rec.ID, err)
	}

	if len(reasons) > 0 {
		return enrichment.NewPartial(rec.ID, patch.Fields(), strings.Join(reasons, "; "))
	}
	return enrichment.NewEnriched(rec.ID, patch.Fields())
}

// attachAssociation sets company and album ids that are not already present.
// Lookup misses and lookup errors leave the record as it is.
func (s *Service) attachAssociation(ctx context.Context, rec *image.Record, patch *image.Patch) {
	if s.assoc == nil || (rec.CompanyID != "" && rec.AlbumID != "") {
		return
	}
	a, ok, err := s.assoc.Lookup(ctx, rec.ID)
	if err != nil {
		logger.FromContext(ctx).Debug("Association lookup failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if rec.CompanyID == "" && a.CompanyID != "" {
		id := a.CompanyID
		patch.CompanyID = &id
		rec.CompanyID = id
	}
	if rec.AlbumID == "" && a.AlbumID != "" {
		id := a.AlbumID
		patch.AlbumID = &id
		rec.AlbumID = id
	}
}

// annotate calls the annotator once and fills the missing description, labels
// and colors. Valid is recomputed whenever moderation scores come back and
// written only when it differs from the stored value.
func (s *Service) annotate(
	ctx context.Context, rec *image.Record, patch *image.Patch, missing image.Missing, opts Options,
) []string {
	if s.annotator == nil {
		return []string{"annotator not configured"}
	}

	actx, cancel := context.WithTimeout(ctx, opts.ProviderTimeout)
	defer cancel()
	ann, err := s.annotator.Annotate(actx, rec.Ref())
	if err != nil {
		return []string{"annotate: " + err.Error()}
	}

	var reasons []string
	if missing.Description {
		if d := strings.TrimSpace(ann.Description); d != "" {
			patch.Description = &d
			rec.Description = d
		} else {
			reasons = append(reasons, "no description returned")
		}
	}
	if missing.Labels {
		if len(ann.Labels) > 0 {
			patch.Labels = ann.Labels
			rec.Labels = ann.Labels
		} else {
			reasons = append(reasons, "no labels returned")
		}
	}
	if missing.Colors {
		if len(ann.Colors) > 0 {
			patch.Colors = ann.Colors
			rec.Colors = ann.Colors
		} else {
			reasons = append(reasons, "no colors returned")
		}
	}
	if ann.Moderation != nil {
		if valid := moderation.ComputeValid(ann.Moderation); valid != rec.Valid {
			patch.Valid = &valid
			rec.Valid = valid
		}
	}
	return reasons
}

// embed requests one vector pair per dimension with a missing field. It
// reports how many dimensions were requested and how many yielded at least
// one usable vector. Vectors whose length differs from the dimension are
// dropped.
func (s *Service) embed(
	ctx context.Context, rec *image.Record, patch *image.Patch, missing image.Missing, opts Options,
) (requested, obtained int, reasons []string) {
	if s.embedder == nil {
		return 0, 0, []string{"embedder not configured"}
	}

	text := rec.EmbeddingText()
	for _, dim := range s.dims {
		kinds := missing.Vectors[dim]
		if len(kinds) == 0 {
			continue
		}
		if text == "" && missing.NeedsKind(dim, image.KindText) {
			kinds = withoutKind(kinds, image.KindText)
			reasons = append(reasons, fmt.Sprintf("no text for text embedding %d", dim))
		}
		if len(kinds) == 0 {
			continue
		}

		requested++
		pctx, cancel := context.WithTimeout(ctx, opts.ProviderTimeout)
		pair, err := s.embedder.EmbedPair(pctx, domain.PairRequest{
			Ref:   rec.Ref(),
			Text:  text,
			Dim:   dim,
			Kinds: kinds,
		})
		cancel()
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("embed %d: %v", dim, err))
			continue
		}

		got := 0
		for _, kind := range kinds {
			v := pair.Get(kind)
			if len(v) != dim {
				reasons = append(reasons, fmt.Sprintf("empty %s embedding %d", kind, dim))
				continue
			}
			patch.SetVector(image.Field(kind, dim), v)
			got++
		}
		if got > 0 {
			obtained++
		}
	}
	return requested, obtained, reasons
}

// merge writes the patch under a detached context so that cancelling the run
// never interrupts a write in flight.
func (s *Service) merge(ctx context.Context, id string, patch image.Patch, opts Options) error {
	base := context.WithoutCancel(ctx)
	err := s.retryTransient(base, "merge", opts.StoreRetries, func() error {
		mctx, cancel := context.WithTimeout(base, opts.StoreTimeout)
		defer cancel()
		return s.store.Merge(mctx, id, patch)
	})
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

func withoutKind(kinds []image.Kind, drop image.Kind) []image.Kind {
	out := make([]image.Kind, 0, len(kinds))
	for _, k := range kinds {
		if k != drop {
			out = append(out, k)
		}
	}
	return out
}
