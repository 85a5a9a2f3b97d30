// Package resourcecache binds a REST resource to the query cache.
//
// # Overview
//
// Hooks[T] wraps a resource.Client[T] and a *cache.Client and exposes the
// operations a screen needs: a paginated list, a single record and the three
// writes. Reads go through the cache. Writes go through the cache's mutation
// queue, so they are held while offline and replayed in order when the
// network comes back.
//
// # Basic Usage
//
//	rc := resource.New[expense.Expense](httpClient, "expenses")
//	hooks, err := resourcecache.New(cacheClient, rc, resourcecache.WithPageLimit(10))
//	if err != nil {
//		return err
//	}
//
//	list, err := hooks.FetchList(ctx, resourcecache.ListFilter{Category: "food"})
//	view := resourcecache.NewListView(list)
//	if view.HasNextPage {
//		_, err = list.FetchNextPage(ctx)
//	}
//
//	res, err := hooks.Create().Mutate(ctx, draft, resourcecache.Callbacks[expense.Expense]{})
//	if res.State == cache.MutationPaused {
//		// queued until the network is back
//	}
//
// # Cache Keys
//
// Every key starts with the resource name:
//
//   - lists: [resource, category, sortBy, order]
//   - single records: [resource, id]
//
// A successful write invalidates the [resource] prefix, which refreshes every
// list and record of the resource that is being observed. Tags attached to
// the write context with WithCacheTags name extra prefixes to invalidate.
//
// # Notices
//
// Writes publish a success notice through the cache client's notifier, and
// a paused notice when a write is queued. The messages are derived from the
// resource name ("Expense added successfully") and can be replaced with
// WithMessages. Rejections are reported by the cache client itself.
//
// # Handlers and Restarts
//
// New registers the resource's mutation handler with the cache client. The
// handler only depends on the persisted mutation, so writes restored from a
// snapshot replay the same way as writes issued in this process. Each replay
// carries the mutation id as its idempotency key.
package resourcecache
