package cache

import (
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/internal/cacheinfra"
)

// DefaultPersistKey is the fixed storage key the snapshot is written under.
const DefaultPersistKey = "query-cache"

// Config exposes client configuration options for consumers of the cache package.
type Config struct {
	Store StoreConfig
	// Query holds the defaults merged into every QueryOptions.
	Query QueryOptions

	PersistKey string
	// Buster invalidates persisted snapshots written with a different value.
	Buster string
	// MaxAge discards persisted snapshots older than this. Zero keeps them forever.
	MaxAge time.Duration
	// PersistThrottle batches snapshot writes caused by query updates.
	// Queue changes are always written immediately.
	PersistThrottle time.Duration
	// QueueOnNetworkError queues a mutation that failed with a network error
	// while online instead of failing it.
	QueueOnNetworkError bool
}

// StoreConfig mirrors the entry store options.
type StoreConfig struct {
	Backend            string
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Store: convertFromInternal(cacheinfra.DefaultConfig()),
		Query: QueryOptions{
			StaleTime: 30 * time.Second,
			Retry: Retry{
				MaxAttempts: 3,
				Backoff:     time.Second,
				MaxBackoff:  30 * time.Second,
			},
			Refetch: RefetchBackground,
		},
		PersistKey:          DefaultPersistKey,
		MaxAge:              24 * time.Hour,
		PersistThrottle:     time.Second,
		QueueOnNetworkError: true,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.Store.toInternal().Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid store config")
	}
	if c.PersistKey == "" {
		return goerrors.New("persist key is required", goerrors.CategoryValidation)
	}
	if c.MaxAge < 0 || c.PersistThrottle < 0 {
		return goerrors.New("max age and persist throttle must be non-negative", goerrors.CategoryValidation)
	}
	if c.Query.Retry.MaxAttempts < 0 || c.Query.Retry.Backoff < 0 || c.Query.Retry.MaxBackoff < 0 {
		return goerrors.New("retry values must be non-negative", goerrors.CategoryValidation)
	}
	return nil
}

func (c StoreConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Backend:            c.Backend,
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) StoreConfig {
	return StoreConfig{
		Backend:            cfg.Backend,
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
