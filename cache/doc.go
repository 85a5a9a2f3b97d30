// Package cache is a client-side query cache with an offline mutation queue.
//
// # Overview
//
// A single Client is created at process start and passed to every operation:
//
//   - Query: keyed reads with stale-time freshness, retries and in-flight dedup
//   - QueryInfinite: paginated reads stored as one entry of ordered pages
//   - Mutate: writes that run at once when online and queue when offline
//   - Invalidate: marks keys stale by prefix and refreshes the observed ones
//   - ResumePausedMutations: replays the queue in FIFO order
//   - Restore: loads the persisted snapshot at startup
//
// # Basic Usage
//
//	c, err := cache.NewClient(cache.DefaultConfig(),
//		cache.WithLogger(logger),
//		cache.WithPersister(store),
//		cache.WithNetworkStatus(monitor),
//	)
//	defer c.Close(ctx)
//
//	res, err := cache.Query(ctx, c, cache.NewKey("expenses", id), func(ctx context.Context) (Expense, error) {
//		return api.GetOne(ctx, id)
//	}, cache.QueryOptions{})
//
// # Keys
//
// A Key is an ordered list of primitive segments. The store indexes entries by
// the string built by a KeySerializer, "::" separated. Numbers are normalized,
// so keys restored from JSON snapshots land on the same entry as the keys that
// wrote them. Prefix matching is segment-wise.
//
// # Mutations
//
// Writes are described by a PendingMutation and executed by the
// MutationHandler registered for their resource. Handlers must be registered
// before Restore so that queued mutations from a previous run can be replayed.
// A ClientRejection removes a mutation from the queue; a NetworkError leaves it
// at the head until the next drain.
//
// # Persistence
//
// The snapshot holds every entry with data plus the queue. It is encoded with
// the configured codec and framed with a checksum (see the codec package).
// Queue changes are written synchronously; query updates are throttled by
// Config.PersistThrottle.
package cache
