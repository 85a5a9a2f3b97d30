package persist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	file, err := NewFileStore(filepath.Join(t.TempDir(), "snapshots"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	sqlite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	_, client := setupMiniRedis(t)
	rs, err := DialRedis(ctx, RedisConfig{Client: client, Prefix: "expensectl:"})
	if err != nil {
		t.Fatalf("DialRedis() error = %v", err)
	}

	mem, err := NewMemoryStore(ctx, time.Hour)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { _ = mem.Close() })

	return map[string]Store{
		BackendFile:   file,
		BackendSQLite: sqlite,
		BackendRedis:  rs,
		BackendMemory: mem,
	}
}

func TestStores_SaveLoadRemove(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.Load(ctx, "query-cache"); !goerrors.IsNotFound(err) {
				t.Fatalf("Load(missing) error = %v, want not found", err)
			}

			if err := store.Save(ctx, "query-cache", []byte("first")); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := store.Save(ctx, "query-cache", []byte("second")); err != nil {
				t.Fatalf("Save() overwrite error = %v", err)
			}
			got, err := store.Load(ctx, "query-cache")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if string(got) != "second" {
				t.Errorf("Load() = %q, want second", got)
			}

			if err := store.Remove(ctx, "query-cache"); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			if err := store.Remove(ctx, "query-cache"); err != nil {
				t.Fatalf("Remove(missing) error = %v", err)
			}
			if _, err := store.Load(ctx, "query-cache"); !goerrors.IsNotFound(err) {
				t.Errorf("Load(after remove) error = %v, want not found", err)
			}
		})
	}
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.Save(context.Background(), "query-cache", []byte("blob")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "query-cache.snapshot" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("dir entries = %s", strings.Join(names, ","))
	}
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	for _, key := range []string{"", "..", "../escape", `a\b`} {
		if err := store.Save(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("Save(%q) error = nil", key)
		}
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, client := setupMiniRedis(t)
	store, err := DialRedis(context.Background(), RedisConfig{Client: client, Prefix: "p:", Expiry: time.Minute})
	if err != nil {
		t.Fatalf("DialRedis() error = %v", err)
	}

	if err := store.Save(context.Background(), "query-cache", []byte("blob")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !mr.Exists("p:query-cache") {
		t.Fatalf("key not stored under prefix")
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Load(context.Background(), "query-cache"); !goerrors.IsNotFound(err) {
		t.Errorf("Load(expired) error = %v, want not found", err)
	}
}

func TestSQLiteStore_TracksUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer store.Close()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return at }
	if err := store.Save(ctx, "query-cache", []byte("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.UpdatedAt(ctx, "query-cache")
	if err != nil {
		t.Fatalf("UpdatedAt() error = %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("UpdatedAt() = %v, want %v", got, at)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "etcd"}); !goerrors.IsValidation(err) {
		t.Errorf("Open() error = %v, want validation error", err)
	}
}
