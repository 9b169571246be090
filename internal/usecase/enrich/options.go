package enrich

import "time"

// Defaults applied to zero Options fields.
const (
	DefaultBatchSize       = 200
	DefaultStoreRetries    = 3
	DefaultProviderTimeout = 60 * time.Second
	DefaultStoreTimeout    = 15 * time.Second
)

// Options controls a single enrichment run.
type Options struct {
	// BatchSize is the number of records fetched per page.
	BatchSize int
	// MaxPages stops the run after that many pages. Zero means until drained.
	MaxPages int
	// Concurrency bounds the records processed in parallel within a page.
	Concurrency int
	// WrapAround clears the cursor once the collection is drained so the
	// next run starts over and revisits records that are still incomplete.
	WrapAround bool
	// ResetCursor ignores the persisted cursor and starts from the beginning.
	ResetCursor bool
	// StoreRetries is the number of retries after a transient store failure.
	// Zero selects DefaultStoreRetries; a negative value disables retries.
	StoreRetries    int
	ProviderTimeout time.Duration
	StoreTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.StoreRetries < 0 {
		o.StoreRetries = 0
	} else if o.StoreRetries == 0 {
		o.StoreRetries = DefaultStoreRetries
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = DefaultProviderTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	return o
}
