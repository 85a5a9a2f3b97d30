package persist

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
)

// MemoryStore keeps blobs in process memory. It survives nothing; it exists
// for tests and for running with persistence effectively disabled.
type MemoryStore struct {
	c *bigcache.BigCache
}

// NewMemoryStore builds a store whose entries live for lifeWindow
// (24h when zero).
func NewMemoryStore(ctx context.Context, lifeWindow time.Duration) (*MemoryStore, error) {
	if lifeWindow <= 0 {
		lifeWindow = 24 * time.Hour
	}
	conf := bigcache.DefaultConfig(lifeWindow)
	conf.Shards = 16
	conf.MaxEntriesInWindow = 64
	conf.Verbose = false

	c, err := bigcache.New(ctx, conf)
	if err != nil {
		return nil, wrap(err, "create memory store")
	}
	return &MemoryStore{c: c}, nil
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	b, err := s.c.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(err, "load snapshot")
	}
	return b, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, blob []byte) error {
	return wrap(s.c.Set(key, blob), "save snapshot")
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	if err := s.c.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return wrap(err, "remove snapshot")
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return s.c.Close()
}
