package persist

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures RedisStore.
type RedisConfig struct {
	// Client is used as is when set; Addr and DB are ignored.
	Client redis.UniversalClient
	Addr   string
	DB     int
	Prefix string
	// Expiry is the lifetime of a saved blob. Zero keeps it forever.
	Expiry time.Duration
}

// RedisStore keeps blobs as plain redis strings.
type RedisStore struct {
	rdb         redis.UniversalClient
	prefix      string
	expiry      time.Duration
	closeClient bool
}

// DialRedis connects to cfg.Addr (or wraps cfg.Client) and pings it.
func DialRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	s := &RedisStore{rdb: cfg.Client, prefix: cfg.Prefix, expiry: cfg.Expiry}
	if s.rdb == nil {
		if cfg.Addr == "" {
			return nil, goerrors.New("redis address is required", goerrors.CategoryValidation)
		}
		s.rdb = redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
		s.closeClient = true
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		_ = s.Close()
		return nil, wrap(err, "ping redis")
	}
	return s, nil
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(err, "load snapshot")
	}
	return b, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, blob []byte) error {
	return wrap(s.rdb.Set(ctx, s.key(key), blob, s.expiry).Err(), "save snapshot")
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return wrap(s.rdb.Del(ctx, s.key(key)).Err(), "remove snapshot")
}

// Close releases the client when the store created it.
func (s *RedisStore) Close() error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
