package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-query-cache/codec"
)

// entry is the cache slot for one key. Every field is guarded by Client.mu.
type entry struct {
	key    Key
	status Status
	data   any
	// raw holds data restored from a snapshot until a typed read decodes it.
	raw      []byte
	rawCodec codec.Codec

	err       error
	fetchedAt time.Time
	errorAt   time.Time

	invalidated bool
	// gen is bumped by every invalidation. Fetches started under an older
	// generation never clear the invalidated flag.
	gen          uint64
	fetching     int
	fetchingNext bool
	// infinite marks entries holding a PageSet.
	infinite bool

	// refetch re-runs the last fetch registered for the key. Invalidation
	// uses it to refresh keys that have observers.
	refetch func(ctx context.Context)
}

func (e *entry) hasData() bool {
	return !e.fetchedAt.IsZero()
}

func (e *entry) isStale(now time.Time, staleTime time.Duration) bool {
	if !e.hasData() || e.invalidated {
		return true
	}
	if staleTime < 0 {
		return true
	}
	return now.Sub(e.fetchedAt) >= staleTime
}

// decode returns the entry data as T, decoding restored bytes on first use.
// A value that cannot be read as T is dropped so the next fetch replaces it.
func decode[T any](e *entry) (T, bool) {
	var zero T
	if !e.hasData() {
		return zero, false
	}
	if e.raw != nil {
		var v T
		if err := e.rawCodec.Unmarshal(e.raw, &v); err != nil {
			e.dropData()
			return zero, false
		}
		e.data, e.raw, e.rawCodec = v, nil, nil
		return v, true
	}
	v, ok := e.data.(T)
	if !ok {
		if e.data == nil {
			return zero, true
		}
		e.dropData()
		return zero, false
	}
	return v, true
}

func (e *entry) dropData() {
	e.data, e.raw, e.rawCodec = nil, nil, nil
	e.fetchedAt = time.Time{}
	if e.status == StatusSuccess {
		e.status = StatusPending
	}
}

func resultOf[T any](e *entry, now time.Time, staleTime time.Duration) Result[T] {
	res := Result[T]{
		Status:     e.status,
		Err:        e.err,
		IsFetching: e.fetching > 0,
	}
	if v, ok := decode[T](e); ok {
		res.Data = v
		res.FetchedAt = e.fetchedAt
		res.IsStale = e.isStale(now, staleTime)
	}
	res.Status = e.status
	return res
}

// EntryInfo describes a cached key without exposing its data.
type EntryInfo struct {
	Key         Key
	Status      Status
	FetchedAt   time.Time
	Invalidated bool
	Fetching    bool
	Observers   int
	Err         error
}
