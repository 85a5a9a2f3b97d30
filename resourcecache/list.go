package resourcecache

import (
	"context"
	"net/url"
	"strconv"

	"github.com/goliatone/go-query-cache/cache"
)

// Default list ordering: newest first.
const (
	DefaultSortBy = "createdAt"
	DefaultOrder  = "desc"
)

// ListFilter selects and orders a list. Empty SortBy and Order take the
// defaults; an empty Category lists everything.
type ListFilter struct {
	Category string
	SortBy   string
	Order    string
}

func (f ListFilter) normalized() ListFilter {
	if f.SortBy == "" {
		f.SortBy = DefaultSortBy
	}
	if f.Order == "" {
		f.Order = DefaultOrder
	}
	return f
}

// ListKey returns the cache key of the list selected by f.
func (h *Hooks[T]) ListKey(f ListFilter) cache.Key {
	f = f.normalized()
	return cache.NewKey(h.resource, f.Category, f.SortBy, f.Order)
}

// List binds the paginated list selected by f without fetching it.
func (h *Hooks[T]) List(f ListFilter) *cache.InfiniteQuery[T] {
	f = f.normalized()
	return cache.QueryInfinite[T](h.cache, h.ListKey(f), h.fetchPage(f), h.nextPage, h.query)
}

// FetchList loads the first page of the list, or returns the cached pages
// while they are fresh. The returned query loads further pages with
// FetchNextPage.
func (h *Hooks[T]) FetchList(ctx context.Context, f ListFilter) (*cache.InfiniteQuery[T], error) {
	q := h.List(f)
	_, err := q.Fetch(ctx)
	return q, err
}

func (h *Hooks[T]) fetchPage(f ListFilter) cache.PageFetchFn[T] {
	return func(ctx context.Context, page int) ([]T, error) {
		return h.client.GetAll(ctx, h.pageParams(f, page))
	}
}

func (h *Hooks[T]) pageParams(f ListFilter, page int) url.Values {
	params := url.Values{
		"page":   {strconv.Itoa(page)},
		"limit":  {strconv.Itoa(h.limit)},
		"sortBy": {f.SortBy},
		"order":  {f.Order},
	}
	if f.Category != "" {
		params.Set("category", f.Category)
	}
	return params
}

// nextPage continues while the last page came back full.
func (h *Hooks[T]) nextPage(last cache.Page[T], all []cache.Page[T]) (int, bool) {
	if len(last.Items) < h.limit {
		return 0, false
	}
	return len(all) + 1, true
}

// ListView is the state a list screen renders.
type ListView[T any] struct {
	Items              []T
	Pages              int
	Status             cache.Status
	Err                error
	IsLoading          bool
	IsFetching         bool
	IsStale            bool
	HasNextPage        bool
	IsFetchingNextPage bool
}

// NewListView snapshots q.
func NewListView[T any](q *cache.InfiniteQuery[T]) ListView[T] {
	res := q.Result()
	return ListView[T]{
		Items:              res.Data.Items(),
		Pages:              len(res.Data.Pages),
		Status:             res.Status,
		Err:                res.Err,
		IsLoading:          res.IsLoading(),
		IsFetching:         res.IsFetching,
		IsStale:            res.IsStale,
		HasNextPage:        q.HasNextPage(),
		IsFetchingNextPage: q.IsFetchingNextPage(),
	}
}
