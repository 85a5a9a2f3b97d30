// Package persist holds the durable storage backends for the query cache
// snapshot. Every backend stores opaque blobs under string keys.
package persist

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TextCodePersist tags errors raised by a storage backend.
const TextCodePersist = "PERSIST_ERROR"

// ErrNotFound is returned by Load when no blob is stored under the key.
var ErrNotFound = goerrors.New("snapshot not found", goerrors.CategoryNotFound).
	WithTextCode("SNAPSHOT_NOT_FOUND")

// Store is durable local storage for the persisted blob.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Remove(ctx context.Context, key string) error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the directory for the file backend and the database file for
	// the sqlite backend.
	Path      string
	RedisAddr string
	RedisDB   int
	// Prefix namespaces redis keys.
	Prefix string
	// Expiry is the redis key lifetime, and the memory backend life window.
	Expiry time.Duration
}

// Open builds the backend named in opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Path)
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	case BackendRedis:
		return DialRedis(ctx, RedisConfig{
			Addr:   opts.RedisAddr,
			DB:     opts.RedisDB,
			Prefix: opts.Prefix,
			Expiry: opts.Expiry,
		})
	case BackendMemory:
		return NewMemoryStore(ctx, opts.Expiry)
	default:
		return nil, goerrors.New(fmt.Sprintf("unknown persist backend %q", opts.Backend), goerrors.CategoryValidation)
	}
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

// Close closes s if it holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, op).WithTextCode(TextCodePersist)
}
