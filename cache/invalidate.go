package cache

import (
	"context"

	"github.com/goliatone/go-query-cache/logging"
)

// Invalidate marks every entry whose key starts with prefix as stale. Data
// is kept. Entries with observers and cached data are refetched in the
// background; the rest refetch on their next read. It returns the number of
// entries marked.
func (c *Client) Invalidate(_ context.Context, prefix Key) int {
	if c.alive() != nil {
		return 0
	}

	c.mu.Lock()
	var (
		notes   []notification
		refetch []func(context.Context)
	)
	for _, skey := range c.store.Keys() {
		e, ok := c.store.Get(skey)
		if !ok || !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		e.gen++
		notes = append(notes, c.notifyLocked(skey, e, EventInvalidated))
		if e.refetch != nil && e.hasData() && c.hasObserversLocked(skey) {
			refetch = append(refetch, e.refetch)
		}
	}
	c.mu.Unlock()

	for _, n := range notes {
		n.deliver()
	}
	for _, fn := range refetch {
		c.goBackground(fn)
	}

	c.logger.Debug("queries invalidated", logging.Fields{
		"prefix":    prefix.String(),
		"matched":   len(notes),
		"refetched": len(refetch),
	})
	if len(notes) > 0 {
		c.schedulePersist()
	}
	return len(notes)
}

// InvalidateAll marks every entry as stale.
func (c *Client) InvalidateAll(ctx context.Context) int {
	return c.Invalidate(ctx, nil)
}
