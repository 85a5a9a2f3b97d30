package cacheinfra

import (
	"github.com/viccon/sturdyc"
)

// sturdycStore wraps a sturdyc client. Only the plain key/value surface is
// used: fetch deduplication and refresh belong to the query cache itself.
type sturdycStore[V any] struct {
	client *sturdyc.Client[V]
}

// NewSturdycStore creates a sturdyc backed store.
// Capacity, NumShards, TTL and EvictionPercentage are passed to sturdyc.New().
func NewSturdycStore[V any](cfg Config) (Store[V], error) {
	cfg.Backend = BackendSturdyc
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newSturdycStore[V](cfg), nil
}

func newSturdycStore[V any](cfg Config) *sturdycStore[V] {
	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[V](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		opts...,
	)
	return &sturdycStore[V]{client: client}
}

func (s *sturdycStore[V]) Get(key string) (V, bool) {
	return s.client.Get(key)
}

func (s *sturdycStore[V]) Set(key string, value V) {
	s.client.Set(key, value)
}

func (s *sturdycStore[V]) Delete(key string) {
	s.client.Delete(key)
}

func (s *sturdycStore[V]) Keys() []string {
	return s.client.ScanKeys()
}

func (s *sturdycStore[V]) Len() int {
	return len(s.client.ScanKeys())
}
