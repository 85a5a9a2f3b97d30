package resourcecache

import (
	"context"

	"github.com/goliatone/go-query-cache/cache"
)

// ItemKey returns the cache key of a single record.
func (h *Hooks[T]) ItemKey(id string) cache.Key {
	return cache.NewKey(h.resource, id)
}

// ItemView is the state a detail screen renders.
type ItemView[T any] struct {
	Data       T
	Found      bool
	Status     cache.Status
	Err        error
	IsLoading  bool
	IsFetching bool
	IsStale    bool
}

// FetchByID loads one record. An empty id disables the query: nothing is
// fetched and an empty view is returned.
func (h *Hooks[T]) FetchByID(ctx context.Context, id string) (ItemView[T], error) {
	opts := h.query
	opts.Disabled = opts.Disabled || id == ""

	res, err := cache.Query[T](ctx, h.cache, h.ItemKey(id), func(ctx context.Context) (T, error) {
		return h.client.GetOne(ctx, id)
	}, opts)

	return ItemView[T]{
		Data:       res.Data,
		Found:      res.HasData(),
		Status:     res.Status,
		Err:        res.Err,
		IsLoading:  res.IsLoading(),
		IsFetching: res.IsFetching,
		IsStale:    res.IsStale,
	}, err
}
