package cacheinfra

import (
	"time"

	"github.com/goliatone/go-query-cache/logging"
)

// Store holds cache entries by their encoded key.
// Implementations must be safe for concurrent use.
type Store[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
	// Keys returns a snapshot of the live keys in no particular order.
	Keys() []string
	Len() int
}

// Supported store backends.
const (
	BackendSturdyc   = "sturdyc"
	BackendRistretto = "ristretto"
)

// Config holds the configuration for the entry store.
type Config struct {
	// Backend selects the store implementation. Empty means sturdyc.
	Backend string

	// Capacity defines the maximum number of entries that the store can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of sturdyc shards for concurrent access.
	// Ignored by ristretto. Default: 256
	NumShards int

	// TTL is how long an entry survives after its last write. Entries that
	// outlive it are garbage collected and refetched on next use.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when sturdyc reaches its capacity. Must be between 1-100.
	// Default: 10 (evict 10% of entries)
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept.
	// Zero value uses the backend default.
	EvictionInterval time.Duration

	// Logger receives warnings such as writes the backend refused.
	// Nil discards them.
	Logger logging.Logger
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendSturdyc,
		Capacity:           10000,
		NumShards:          256,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// Validate checks if the configuration values are valid.
// Returns an error if any configuration parameter is invalid.
func (c Config) Validate() error {
	switch c.Backend {
	case "", BackendSturdyc, BackendRistretto:
	default:
		return &ConfigError{Field: "Backend", Message: "must be sturdyc or ristretto"}
	}

	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.backend() == BackendSturdyc && c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.backend() == BackendSturdyc && (c.EvictionPercentage < 1 || c.EvictionPercentage > 100) {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

func (c Config) backend() string {
	if c.Backend == "" {
		return BackendSturdyc
	}
	return c.Backend
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// NewStore validates cfg and builds the selected backend.
func NewStore[V any](cfg Config) (Store[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.backend() == BackendRistretto {
		return newRistrettoStore[V](cfg)
	}
	return newSturdycStore[V](cfg), nil
}
