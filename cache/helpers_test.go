package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// fakeNetwork is a NetworkStatus the test flips by hand.
type fakeNetwork struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	next   int
}

func newFakeNetwork(online bool) *fakeNetwork {
	return &fakeNetwork{online: online, subs: make(map[int]func(bool))}
}

func (n *fakeNetwork) IsOnline() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *fakeNetwork) Subscribe(fn func(bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	id := n.next
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *fakeNetwork) set(online bool) {
	n.mu.Lock()
	n.online = online
	fns := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// memPersister keeps blobs in a map and records calls.
type memPersister struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saves   int
	removes int
}

func newMemPersister() *memPersister {
	return &memPersister{blobs: make(map[string][]byte)}
}

func (p *memPersister) Load(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[key]
	if !ok {
		return nil, goerrors.New("no blob for "+key, goerrors.CategoryNotFound)
	}
	return append([]byte(nil), b...), nil
}

func (p *memPersister) Save(_ context.Context, key string, blob []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blobs[key] = append([]byte(nil), blob...)
	p.saves++
	return nil
}

func (p *memPersister) Remove(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.blobs, key)
	p.removes++
	return nil
}

func (p *memPersister) counts() (saves, removes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves, p.removes
}

func (p *memPersister) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.blobs[key]
	return ok
}

// recordingNotifier stores every notice.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Message
	}
	return out
}

func (r *recordingNotifier) levels() []Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Level, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Level
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig keeps retries fast and persistence synchronous.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Query.Retry = Retry{MaxAttempts: 1, Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	cfg.PersistThrottle = 0
	return cfg
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(cfg, opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// waitBackground blocks until background refetches and drains finish.
func waitBackground(c *Client) {
	c.background.Wait()
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

// counter counts calls across goroutines.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
