package enrich

import (
	"time"

	"github.com/kailas-cloud/imagedex/internal/domain/enrichment"
)

// Report summarizes one enrichment run.
type Report struct {
	RunID string
	// StartCursor is where the run resumed from; Cursor is where it stopped.
	StartCursor string
	Cursor      string
	Pages       int
	Processed   int
	Enriched    int
	Partial     int
	Unchanged   int
	Skipped     int
	Failed      int
	// Drained is set when the last page reached the end of the collection.
	Drained  bool
	Duration time.Duration
}

func (r *Report) add(res enrichment.Result) {
	r.Processed++
	switch res.Status() {
	case enrichment.StatusEnriched:
		r.Enriched++
	case enrichment.StatusPartial:
		r.Partial++
	case enrichment.StatusUnchanged:
		r.Unchanged++
	case enrichment.StatusSkipped:
		r.Skipped++
	case enrichment.StatusFailed:
		r.Failed++
	}
}

// Written is the number of records a merge was issued for.
func (r *Report) Written() int {
	return r.Enriched + r.Partial
}
