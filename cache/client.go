package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-query-cache/codec"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"github.com/goliatone/go-query-cache/logging"
)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = goerrors.New("query cache client is closed", goerrors.CategoryOperation).
	WithTextCode("CLIENT_CLOSED")

// Client is the query and mutation cache. It is created once at process
// start, passed by reference to every operation and torn down with Close.
type Client struct {
	cfg    Config
	store  cacheinfra.Store[*entry]
	keys   KeySerializer
	codec  codec.Codec
	logger logging.Logger
	now    func() time.Time

	persister Persister
	network   NetworkStatus
	notifier  Notifier

	// mu guards every entry transition and the observer registry.
	mu        sync.Mutex
	observers map[string]*observerSet
	nextObsID uint64

	flights singleflight.Group

	// execMu serializes mutation execution so the queue drains in order.
	execMu   sync.Mutex
	queue    *mutationQueue
	handlers *xsync.MapOf[string, MutationHandler]
	waiters  *xsync.MapOf[string, *waiter]

	persistMu    sync.Mutex
	persistTimer *time.Timer
	// saveMu keeps snapshot writes in order.
	saveMu sync.Mutex

	online      atomic.Bool
	unsubscribe func()

	// bgMu orders background.Add against the Wait in Close.
	bgMu       sync.Mutex
	background sync.WaitGroup
	closed     atomic.Bool
}

// Option configures a Client's collaborators.
type Option func(*Client)

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// WithPersister enables snapshot persistence.
func WithPersister(p Persister) Option {
	return func(c *Client) { c.persister = p }
}

// WithNetworkStatus connects the client to an online/offline signal.
// Without one the client assumes it is always online.
func WithNetworkStatus(n NetworkStatus) Option {
	return func(c *Client) {
		if n != nil {
			c.network = n
		}
	}
}

// WithNotifier sets where user facing notices go. The default logs them.
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithCodec selects the snapshot codec. The default is JSON.
func WithCodec(cd codec.Codec) Option {
	return func(c *Client) {
		if cd != nil {
			c.codec = cd
		}
	}
}

// WithKeySerializer replaces the serializer used to index the entry store.
func WithKeySerializer(s KeySerializer) Option {
	return func(c *Client) {
		if s != nil {
			c.keys = s
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient validates cfg, builds the entry store and subscribes to the
// network status, if one is configured.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		keys:      NewDefaultKeySerializer(),
		codec:     codec.JSON{},
		logger:    logging.NopLogger{},
		now:       time.Now,
		network:   alwaysOnline{},
		observers: make(map[string]*observerSet),
		queue:     newMutationQueue(),
		handlers:  xsync.NewMapOf[string, MutationHandler](),
		waiters:   xsync.NewMapOf[string, *waiter](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = logNotifier{logger: c.logger}
	}

	storeCfg := cfg.Store.toInternal()
	storeCfg.Logger = c.logger
	store, err := cacheinfra.NewStore[*entry](storeCfg)
	if err != nil {
		return nil, err
	}
	c.store = store

	c.online.Store(c.network.IsOnline())
	c.unsubscribe = c.network.Subscribe(c.onNetworkChange)

	return c, nil
}

// Notify publishes n through the configured notifier.
func (c *Client) Notify(ctx context.Context, n Notice) {
	c.notifier.Notify(ctx, n)
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// IsOnline reports the last known network state.
func (c *Client) IsOnline() bool {
	return c.network.IsOnline()
}

// Close unsubscribes from the network status, waits for background work and
// writes a final snapshot. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.bgMu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.bgMu.Unlock()
		return nil
	}
	c.bgMu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}

	done := make(chan struct{})
	go func() {
		c.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.persistMu.Lock()
	if c.persistTimer != nil {
		c.persistTimer.Stop()
		c.persistTimer = nil
	}
	c.persistMu.Unlock()

	return c.persistNow(ctx)
}

func (c *Client) alive() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return nil
}

// goBackground runs fn on a goroutine Close waits for.
func (c *Client) goBackground(fn func(ctx context.Context)) {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.closed.Load() {
		return
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		fn(context.Background())
	}()
}

func (c *Client) onNetworkChange(online bool) {
	was := c.online.Swap(online)
	if was == online {
		return
	}

	ctx := context.Background()
	if !online {
		c.logger.Warn("network offline", nil)
		c.notifier.Notify(ctx, Notice{Level: LevelWarn, Message: MessageOffline})
		return
	}

	c.logger.Info("network online, resuming paused mutations", logging.Fields{"pending": c.queue.len()})
	c.notifier.Notify(ctx, Notice{Level: LevelInfo, Message: MessageBackOnline})
	c.goBackground(func(ctx context.Context) {
		report, err := c.ResumePausedMutations(ctx)
		if err != nil {
			c.logger.Warn("resume after reconnect stopped", logging.Fields{
				"error":     err.Error(),
				"applied":   report.Applied,
				"remaining": report.Remaining,
			})
		}
	})
}

// encode maps a Key to the string the entry store is indexed by.
func (c *Client) encode(key Key) string {
	return c.keys.SerializeKey(key...)
}

// lookupLocked returns the entry for key, creating it when create is true.
// Callers must hold c.mu.
func (c *Client) lookupLocked(skey string, key Key, create bool) *entry {
	if e, ok := c.store.Get(skey); ok {
		return e
	}
	if !create {
		return nil
	}
	e := &entry{key: NewKey(key...), status: StatusPending}
	c.store.Set(skey, e)
	return e
}

// Peek returns a snapshot of key without fetching.
func Peek[T any](c *Client, key Key) (Result[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookupLocked(c.encode(key), key, false)
	if e == nil {
		return Result[T]{}, false
	}
	return resultOf[T](e, c.now(), c.cfg.Query.StaleTime), true
}

// Entries lists every live entry, for diagnostics.
func (c *Client) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EntryInfo, 0, c.store.Len())
	for _, skey := range c.store.Keys() {
		e, ok := c.store.Get(skey)
		if !ok {
			continue
		}
		info := EntryInfo{
			Key:         NewKey(e.key...),
			Status:      e.status,
			FetchedAt:   e.fetchedAt,
			Invalidated: e.invalidated,
			Fetching:    e.fetching > 0,
			Err:         e.err,
		}
		if set := c.observers[skey]; set != nil {
			info.Observers = len(set.subs)
		}
		out = append(out, info)
	}
	return out
}

type logNotifier struct{ logger logging.Logger }

func (n logNotifier) Notify(_ context.Context, notice Notice) {
	fields := logging.Fields{"level": notice.Level.String()}
	if notice.Resource != "" {
		fields["resource"] = notice.Resource
	}
	if notice.MutationID != "" {
		fields["mutation_id"] = notice.MutationID
	}
	if notice.Err != nil {
		fields["error"] = notice.Err.Error()
	}
	switch notice.Level {
	case LevelError:
		n.logger.Error(notice.Message, fields)
	case LevelWarn:
		n.logger.Warn(notice.Message, fields)
	default:
		n.logger.Info(notice.Message, fields)
	}
}
