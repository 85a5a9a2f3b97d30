package cache

import (
	"time"
)

// Status is the lifecycle state of a cached query.
type Status int

const (
	// StatusPending means no data has been stored yet.
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// RefetchMode controls what Query does with stale cached data.
type RefetchMode int

const (
	// RefetchBackground returns the stale data immediately and refreshes
	// the entry in the background. Observers see the fresh result.
	RefetchBackground RefetchMode = iota
	// RefetchBlocking waits for the refetch and returns fresh data.
	RefetchBlocking
)

// Retry is an exponential backoff policy: attempt n waits
// Backoff * 2^(n-1), capped at MaxBackoff. Only retryable errors are retried.
type Retry struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// QueryOptions enumerates the options a query recognizes.
//
// Zero fields take the client defaults. A negative StaleTime marks data stale
// as soon as it is stored.
type QueryOptions struct {
	StaleTime time.Duration
	Retry     Retry
	// Disabled skips fetching entirely; cached data, if any, is still returned.
	Disabled bool
	Refetch  RefetchMode
}

func (o QueryOptions) withDefaults(d QueryOptions) QueryOptions {
	if o.StaleTime == 0 {
		o.StaleTime = d.StaleTime
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if o.Retry.Backoff == 0 {
		o.Retry.Backoff = d.Retry.Backoff
	}
	if o.Retry.MaxBackoff == 0 {
		o.Retry.MaxBackoff = d.Retry.MaxBackoff
	}
	if o.Refetch == RefetchBackground {
		o.Refetch = d.Refetch
	}
	return o
}

// Result is a consistent snapshot of one query.
type Result[T any] struct {
	Status    Status
	Data      T
	Err       error
	FetchedAt time.Time
	// IsStale is true when Data is past its stale time or was invalidated.
	IsStale bool
	// IsFetching is true while a network call for the key is running.
	IsFetching bool
}

// HasData reports whether Data holds a fetched value.
func (r Result[T]) HasData() bool { return !r.FetchedAt.IsZero() }

// IsLoading is true while the first fetch of a key is running.
func (r Result[T]) IsLoading() bool { return !r.HasData() && r.IsFetching }
