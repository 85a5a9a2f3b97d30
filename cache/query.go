package cache

import (
	"context"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/faults"
	"github.com/goliatone/go-query-cache/logging"
)

// Query returns the cached result for key, fetching it with fetchFn when the
// entry is absent or stale.
//
//   - Fresh data is returned without a network call.
//   - Concurrent calls for the same key share one in-flight fetch and observe
//     the same result.
//   - Stale data is returned immediately and refreshed in the background,
//     unless opts.Refetch is RefetchBlocking. Without cached data the call
//     always waits.
//
// Cancelling ctx abandons the wait only. The fetch runs to completion and
// updates the cache for later readers.
func Query[T any](ctx context.Context, c *Client, key Key, fetchFn FetchFn[T], opts QueryOptions) (Result[T], error) {
	if err := c.alive(); err != nil {
		return Result[T]{}, err
	}
	if fetchFn == nil {
		return Result[T]{}, goerrors.New("fetchFn cannot be nil", goerrors.CategoryBadInput)
	}

	opts = opts.withDefaults(c.cfg.Query)
	skey := c.encode(key)
	now := c.now()

	c.mu.Lock()
	if opts.Disabled {
		var res Result[T]
		if e := c.lookupLocked(skey, key, false); e != nil {
			res = resultOf[T](e, now, opts.StaleTime)
		}
		c.mu.Unlock()
		return res, nil
	}

	e := c.lookupLocked(skey, key, true)
	e.refetch = func(ctx context.Context) {
		_, _ = fetchLatest(ctx, c, key, skey, fetchFn, opts)
	}

	res := resultOf[T](e, now, opts.StaleTime)
	if res.HasData() && !res.IsStale {
		c.mu.Unlock()
		return res, nil
	}

	gen := e.gen
	if res.HasData() && opts.Refetch == RefetchBackground {
		res.IsFetching = true
		c.mu.Unlock()
		c.goBackground(func(ctx context.Context) {
			_, _ = runFetch(ctx, c, key, skey, gen, fetchFn, opts)
		})
		return res, nil
	}
	c.mu.Unlock()

	return runFetch(ctx, c, key, skey, gen, fetchFn, opts)
}

// fetchLatest fetches key under its current generation.
func fetchLatest[T any](ctx context.Context, c *Client, key Key, skey string, fetchFn FetchFn[T], opts QueryOptions) (Result[T], error) {
	c.mu.Lock()
	gen := c.lookupLocked(skey, key, true).gen
	c.mu.Unlock()
	return runFetch(ctx, c, key, skey, gen, fetchFn, opts)
}

// runFetch joins or starts the flight for key at generation gen. Including
// the generation in the flight key means a read issued after an
// invalidation never joins a fetch that started before it.
func runFetch[T any](ctx context.Context, c *Client, key Key, skey string, gen uint64, fetchFn FetchFn[T], opts QueryOptions) (Result[T], error) {
	flightKey := skey + "#" + strconv.FormatUint(gen, 10)
	fetchCtx := context.WithoutCancel(ctx)

	ch := c.flights.DoChan(flightKey, func() (any, error) {
		return c.doFetch(fetchCtx, key, skey, gen, opts.Retry, func(ctx context.Context) (any, error) {
			return fetchFn(ctx)
		})
	})

	select {
	case r := <-ch:
		c.mu.Lock()
		var res Result[T]
		if e := c.lookupLocked(skey, key, false); e != nil {
			res = resultOf[T](e, c.now(), opts.StaleTime)
		}
		c.mu.Unlock()

		if r.Err != nil {
			res.Status = StatusError
			res.Err = r.Err
			return res, r.Err
		}
		// Everyone sharing the flight sees the value it produced.
		res.Data, _ = r.Val.(T)
		res.Status = StatusSuccess
		res.Err = nil
		if res.FetchedAt.IsZero() {
			res.FetchedAt = c.now()
		}
		return res, nil
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	}
}

// doFetch runs fn with retries and records the outcome on the entry.
func (c *Client) doFetch(ctx context.Context, key Key, skey string, gen uint64, retry Retry, fn func(context.Context) (any, error)) (any, error) {
	started := c.now()

	c.mu.Lock()
	e := c.lookupLocked(skey, key, true)
	e.fetching++
	n := c.notifyLocked(skey, e, EventFetching)
	c.mu.Unlock()
	n.deliver()

	v, attempts, err := withRetry(ctx, retry, fn)

	c.mu.Lock()
	e = c.lookupLocked(skey, key, true)
	if e.fetching > 0 {
		e.fetching--
	}
	ev := EventSuccess
	switch {
	case err != nil:
		e.status = StatusError
		e.err = err
		e.errorAt = c.now()
		ev = EventError
	case e.fetchedAt.After(started):
		// A fetch that started later already stored newer data.
	default:
		e.status = StatusSuccess
		e.data = v
		e.raw, e.rawCodec = nil, nil
		e.err = nil
		e.fetchedAt = c.now()
		if e.gen == gen {
			e.invalidated = false
		}
	}
	c.store.Set(skey, e)
	n = c.notifyLocked(skey, e, ev)
	c.mu.Unlock()
	n.deliver()

	fields := logging.Fields{"key": skey, "attempts": attempts}
	if err != nil {
		fields["error"] = err.Error()
		fields["kind"] = faults.KindOf(err).String()
		c.logger.Warn("query fetch failed", fields)
		return nil, err
	}
	c.logger.Debug("query fetched", fields)
	c.schedulePersist()
	return v, nil
}

// withRetry calls fn until it succeeds, returns a non-retryable error or
// runs out of attempts. It returns the number of attempts made.
func withRetry(ctx context.Context, r Retry, fn func(context.Context) (any, error)) (any, int, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err
		if attempt >= attempts || !faults.IsRetryable(err) {
			return nil, attempt, lastErr
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, lastErr
		case <-timer.C:
		}
	}
}

// delay is the wait after the given failed attempt: Backoff * 2^(attempt-1),
// capped at MaxBackoff when set.
func (r Retry) delay(attempt int) time.Duration {
	d := r.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if r.MaxBackoff > 0 && d >= r.MaxBackoff {
			return r.MaxBackoff
		}
	}
	if r.MaxBackoff > 0 && d > r.MaxBackoff {
		return r.MaxBackoff
	}
	return d
}
