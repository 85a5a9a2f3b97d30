package cacheinfra

import (
	"github.com/dgraph-io/ristretto"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-query-cache/logging"
)

// ristrettoStore keeps entries in ristretto. Ristretto cannot enumerate its
// keys, so a registry tracks what was written; Keys prunes registry entries
// the cache has already dropped.
type ristrettoStore[V any] struct {
	cache *ristretto.Cache
	keys   *xsync.MapOf[string, struct{}]
	cfg    Config
	logger logging.Logger
}

// NewRistrettoStore creates a ristretto backed store. Every entry costs 1 and
// ristretto's per item bookkeeping is not charged, so Capacity bounds the
// number of entries.
func NewRistrettoStore[V any](cfg Config) (Store[V], error) {
	cfg.Backend = BackendRistretto
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newRistrettoStore[V](cfg)
}

func newRistrettoStore[V any](cfg Config) (*ristrettoStore[V], error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(cfg.Capacity) * 10,
		MaxCost:            int64(cfg.Capacity),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoStore[V]{
		cache:  c,
		keys:   xsync.NewMapOf[string, struct{}](),
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
	}, nil
}

func (s *ristrettoStore[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := s.cache.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

func (s *ristrettoStore[V]) Set(key string, value V) {
	if !s.cache.SetWithTTL(key, value, 1, s.cfg.TTL) {
		s.logger.Warn("ristretto dropped cache entry", logging.Fields{"key": key})
		return
	}
	// Sets are buffered; wait so the write is visible to the next Get.
	s.cache.Wait()
	s.keys.Store(key, struct{}{})
}

func (s *ristrettoStore[V]) Delete(key string) {
	s.cache.Del(key)
	s.keys.Delete(key)
}

func (s *ristrettoStore[V]) Keys() []string {
	out := make([]string, 0, s.keys.Size())
	s.keys.Range(func(key string, _ struct{}) bool {
		if _, ok := s.cache.Get(key); ok {
			out = append(out, key)
		} else {
			s.keys.Delete(key)
		}
		return true
	})
	return out
}

func (s *ristrettoStore[V]) Len() int {
	return len(s.Keys())
}

// Close stops ristretto's background goroutines.
func (s *ristrettoStore[V]) Close() {
	s.cache.Close()
}
