// Package dedup holds the persistent record of which processing keys (listing
// URLs, archive URLs) have already been handled and with what result. It is
// what makes a crawl resumable: anything present here is skipped on the next
// run, anything absent is retried.
package dedup

import (
	"context"
	"time"
)

// Cache is a durable key/value mapping. Set must not return until the entry is
// persisted; a failed Set leaves the previously persisted state untouched.
// Implementations are safe for concurrent use, and serialize writers.
type Cache[V any] interface {
	// Get returns the value stored under key, and whether it was present.
	Get(ctx context.Context, key string) (V, bool, error)
	// Set stores value under key, overwriting any previous value, and persists
	// it before returning.
	Set(ctx context.Context, key string, value V) error
	// Range calls fn for every entry in key order. Returning an error from fn
	// stops the iteration and is returned from Range.
	Range(ctx context.Context, fn func(key string, value V) error) error
	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)
	// ModTime reports when the cache was last persisted. The zero time means
	// it has never been written.
	ModTime(ctx context.Context) (time.Time, error)
}
