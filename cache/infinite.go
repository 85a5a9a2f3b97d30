package cache

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/logging"
)

// Page is one fetched page of an infinite query. Param is 1-based.
type Page[T any] struct {
	Param int `json:"param"`
	Items []T `json:"items"`
}

// PageSet is the data an infinite query caches: its pages in the order they
// were fetched plus the param of the next page, if any.
type PageSet[T any] struct {
	Pages     []Page[T] `json:"pages"`
	NextParam int       `json:"next_param"`
	HasNext   bool      `json:"has_next"`
}

// Items flattens the pages.
func (s PageSet[T]) Items() []T {
	n := 0
	for _, p := range s.Pages {
		n += len(p.Items)
	}
	out := make([]T, 0, n)
	for _, p := range s.Pages {
		out = append(out, p.Items...)
	}
	return out
}

// PageFetchFn loads the page identified by param.
type PageFetchFn[T any] func(ctx context.Context, param int) ([]T, error)

// NextPageParamFn returns the param of the page after last, or false when
// there are no more pages.
type NextPageParamFn[T any] func(last Page[T], all []Page[T]) (int, bool)

// InfiniteQuery is a paginated query stored as a single entry.
type InfiniteQuery[T any] struct {
	c         *Client
	key       Key
	skey      string
	fetchPage PageFetchFn[T]
	next      NextPageParamFn[T]
	opts      QueryOptions
}

// QueryInfinite binds a paginated query to key. Nothing is fetched until
// Fetch or FetchNextPage is called.
func QueryInfinite[T any](c *Client, key Key, fetchPage PageFetchFn[T], next NextPageParamFn[T], opts QueryOptions) *InfiniteQuery[T] {
	return &InfiniteQuery[T]{
		c:         c,
		key:       NewKey(key...),
		skey:      c.encode(key),
		fetchPage: fetchPage,
		next:      next,
		opts:      opts,
	}
}

// Key returns the query key.
func (q *InfiniteQuery[T]) Key() Key { return NewKey(q.key...) }

// Fetch loads the first page, or returns the cached pages while they are
// fresh. A refetch drops every loaded page and starts again at page 1.
func (q *InfiniteQuery[T]) Fetch(ctx context.Context) (Result[PageSet[T]], error) {
	if q.fetchPage == nil || q.next == nil {
		return Result[PageSet[T]]{}, goerrors.New("fetchPage and next page param func are required", goerrors.CategoryBadInput)
	}
	if !q.opts.Disabled {
		q.c.mu.Lock()
		q.c.lookupLocked(q.skey, q.key, true).infinite = true
		q.c.mu.Unlock()
	}
	return Query[PageSet[T]](ctx, q.c, q.key, q.firstPage, q.opts)
}

func (q *InfiniteQuery[T]) firstPage(ctx context.Context) (PageSet[T], error) {
	items, err := q.fetchPage(ctx, 1)
	if err != nil {
		return PageSet[T]{}, err
	}
	return q.pageSet([]Page[T]{{Param: 1, Items: items}}), nil
}

func (q *InfiniteQuery[T]) pageSet(pages []Page[T]) PageSet[T] {
	param, ok := q.next(pages[len(pages)-1], pages)
	return PageSet[T]{Pages: pages, NextParam: param, HasNext: ok}
}

// FetchNextPage appends the next page. Without cached pages it behaves like
// Fetch; when there is no next page it returns the current result untouched.
// A page that arrives after the query was invalidated is discarded.
func (q *InfiniteQuery[T]) FetchNextPage(ctx context.Context) (Result[PageSet[T]], error) {
	if err := q.c.alive(); err != nil {
		return Result[PageSet[T]]{}, err
	}
	opts := q.opts.withDefaults(q.c.cfg.Query)
	if opts.Disabled {
		return q.Result(), nil
	}

	q.c.mu.Lock()
	e := q.c.lookupLocked(q.skey, q.key, false)
	if e == nil {
		q.c.mu.Unlock()
		return q.Fetch(ctx)
	}
	set, ok := decode[PageSet[T]](e)
	if !ok || len(set.Pages) == 0 {
		q.c.mu.Unlock()
		return q.Fetch(ctx)
	}
	if !set.HasNext {
		res := resultOf[PageSet[T]](e, q.c.now(), opts.StaleTime)
		q.c.mu.Unlock()
		return res, nil
	}
	gen, param := e.gen, set.NextParam
	q.c.mu.Unlock()

	flightKey := fmt.Sprintf("%s#%d#page:%d", q.skey, gen, param)
	fetchCtx := context.WithoutCancel(ctx)
	ch := q.c.flights.DoChan(flightKey, func() (any, error) {
		return nil, q.appendPage(fetchCtx, gen, param, opts.Retry)
	})

	select {
	case r := <-ch:
		res := q.Result()
		if r.Err != nil {
			res.Status = StatusError
			res.Err = r.Err
			return res, r.Err
		}
		return res, nil
	case <-ctx.Done():
		return Result[PageSet[T]]{}, ctx.Err()
	}
}

func (q *InfiniteQuery[T]) appendPage(ctx context.Context, gen uint64, param int, retry Retry) error {
	c := q.c

	c.mu.Lock()
	e := c.lookupLocked(q.skey, q.key, true)
	e.fetching++
	e.fetchingNext = true
	n := c.notifyLocked(q.skey, e, EventFetching)
	c.mu.Unlock()
	n.deliver()

	v, attempts, err := withRetry(ctx, retry, func(ctx context.Context) (any, error) {
		return q.fetchPage(ctx, param)
	})

	c.mu.Lock()
	e = c.lookupLocked(q.skey, q.key, true)
	if e.fetching > 0 {
		e.fetching--
	}
	e.fetchingNext = false
	ev := EventSuccess
	appended := false
	switch {
	case err != nil:
		e.status = StatusError
		e.err = err
		e.errorAt = c.now()
		ev = EventError
	case e.gen != gen:
		// Invalidated while in flight. The next Fetch restarts at page 1.
	default:
		set, ok := decode[PageSet[T]](e)
		if !ok || hasPage(set.Pages, param) {
			break
		}
		items, _ := v.([]T)
		pages := make([]Page[T], len(set.Pages), len(set.Pages)+1)
		copy(pages, set.Pages)
		pages = append(pages, Page[T]{Param: param, Items: items})
		e.data = q.pageSet(pages)
		e.status = StatusSuccess
		e.err = nil
		e.fetchedAt = c.now()
		appended = true
	}
	c.store.Set(q.skey, e)
	n = c.notifyLocked(q.skey, e, ev)
	c.mu.Unlock()
	n.deliver()

	fields := logging.Fields{"key": q.skey, "page": param, "attempts": attempts}
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Warn("next page fetch failed", fields)
		return err
	}
	fields["appended"] = appended
	c.logger.Debug("next page fetched", fields)
	if appended {
		c.schedulePersist()
	}
	return nil
}

func hasPage[T any](pages []Page[T], param int) bool {
	for _, p := range pages {
		if p.Param == param {
			return true
		}
	}
	return false
}

// HasNextPage reports whether the cached pages have a successor.
func (q *InfiniteQuery[T]) HasNextPage() bool {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	e := q.c.lookupLocked(q.skey, q.key, false)
	if e == nil {
		return false
	}
	set, ok := decode[PageSet[T]](e)
	return ok && set.HasNext
}

// IsFetchingNextPage reports whether a next-page fetch is running.
func (q *InfiniteQuery[T]) IsFetchingNextPage() bool {
	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	e := q.c.lookupLocked(q.skey, q.key, false)
	return e != nil && e.fetchingNext
}

// Result returns the current snapshot without fetching.
func (q *InfiniteQuery[T]) Result() Result[PageSet[T]] {
	staleTime := q.opts.withDefaults(q.c.cfg.Query).StaleTime

	q.c.mu.Lock()
	defer q.c.mu.Unlock()
	e := q.c.lookupLocked(q.skey, q.key, false)
	if e == nil {
		return Result[PageSet[T]]{}
	}
	return resultOf[PageSet[T]](e, q.c.now(), staleTime)
}
