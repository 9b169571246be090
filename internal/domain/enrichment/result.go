// Package enrichment holds the per-record outcomes of an enrichment pass.
package enrichment

// Status is the processing outcome of a single record.
type Status string

// Record outcome values.
const (
	// StatusEnriched means every missing field was filled and merged.
	StatusEnriched Status = "enriched"
	// StatusPartial means a merge happened but some requested fields stayed missing.
	StatusPartial Status = "partial"
	// StatusUnchanged means nothing was missing; no write was issued.
	StatusUnchanged Status = "unchanged"
	// StatusSkipped means no write was issued because providers returned nothing usable.
	StatusSkipped Status = "skipped"
	// StatusFailed means the record could not be processed or merged.
	StatusFailed Status = "failed"
)

// Result is the outcome of enriching one record.
type Result struct {
	id     string
	status Status
	fields []string
	reason string
	err    error
}

// NewEnriched creates a result for a fully enriched record.
func NewEnriched(id string, fields []string) Result {
	return Result{id: id, status: StatusEnriched, fields: fields}
}

// NewPartial creates a result for a record merged with some gaps left.
func NewPartial(id string, fields []string, reason string) Result {
	return Result{id: id, status: StatusPartial, fields: fields, reason: reason}
}

// NewUnchanged creates a result for a record that needed no work.
func NewUnchanged(id string) Result { return Result{id: id, status: StatusUnchanged} }

// NewSkipped creates a result for a record left untouched this pass.
func NewSkipped(id, reason string) Result {
	return Result{id: id, status: StatusSkipped, reason: reason}
}

// NewFailed creates a failed result.
func NewFailed(id string, err error) Result {
	return Result{id: id, status: StatusFailed, reason: "error", err: err}
}

// ID returns the record identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() Status { return r.status }

// Fields returns the names of the fields that were written.
func (r Result) Fields() []string { return r.fields }

// Reason explains a partial, skipped or failed outcome.
func (r Result) Reason() string { return r.reason }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Wrote reports whether a merge was issued for the record.
func (r Result) Wrote() bool {
	return r.status == StatusEnriched || r.status == StatusPartial
}
