package di

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/codec"
	"github.com/goliatone/go-query-cache/config"
	"github.com/goliatone/go-query-cache/expense"
	"github.com/goliatone/go-query-cache/logging"
	logruslog "github.com/goliatone/go-query-cache/logging/logrus"
	sloglog "github.com/goliatone/go-query-cache/logging/slog"
	zaplog "github.com/goliatone/go-query-cache/logging/zap"
	zerologlog "github.com/goliatone/go-query-cache/logging/zerolog"
	"github.com/goliatone/go-query-cache/online"
	"github.com/goliatone/go-query-cache/persist"
	"github.com/goliatone/go-query-cache/resource"
	"github.com/goliatone/go-query-cache/resourcecache"
	"github.com/goliatone/go-query-cache/transport"
)

// Container wires the query cache and its collaborators from one
// config.Config. It owns the cache client, the snapshot store, the
// transport and the connectivity monitor, and hands out resource hooks
// bound to them.
type Container struct {
	config    config.Config
	logger    logging.Logger
	store     persist.Store
	ownsStore bool
	transport *transport.Client
	monitor   *online.Monitor
	prober    *online.Prober
	cache     *cache.Client
	expenses  *resourcecache.Hooks[expense.Expense]
}

// Option overrides a collaborator the container would otherwise build.
type Option func(*options)

type options struct {
	logger     logging.Logger
	logOutput  io.Writer
	notifier   cache.Notifier
	httpClient *http.Client
	store      persist.Store
	monitor    *online.Monitor
	cacheOpts  []cache.Option
}

// WithLogger uses l instead of the logger selected by the logging section.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLogOutput sets where the built logger writes. The default is stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithNotifier sets where user facing notices go.
func WithNotifier(n cache.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithHTTPClient sets the HTTP client used by the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithStore uses s as the snapshot store instead of opening the configured one.
func WithStore(s persist.Store) Option {
	return func(o *options) { o.store = s }
}

// WithMonitor shares an existing connectivity monitor.
func WithMonitor(m *online.Monitor) Option {
	return func(o *options) { o.monitor = m }
}

// WithCacheOptions appends raw cache client options, such as a clock.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) { o.cacheOpts = append(o.cacheOpts, opts...) }
}

// NewContainer validates cfg and builds every collaborator. Handlers for the
// expense resource are registered before the container is returned, so
// Start can replay queued expense writes.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		l, err := NewLogger(cfg.Logging, o.logOutput)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	cd, err := codec.ByName(cfg.Persist.Codec)
	if err != nil {
		return nil, err
	}

	tc, err := transport.New(cfg.TransportConfig(), transportOptions(o, logger)...)
	if err != nil {
		return nil, err
	}

	monitor := o.monitor
	if monitor == nil {
		monitor = online.NewMonitor(!cfg.Online.ForceOffline)
	}
	prober := online.NewProber(tc, monitor,
		online.WithInterval(cfg.Online.ProbeInterval.Std()),
		online.WithTimeout(cfg.Online.ProbeTimeout.Std()),
		online.WithLogger(logger),
	)

	store := o.store
	if store == nil && cfg.Persist.Enabled {
		store, err = persist.Open(ctx, cfg.PersistOptions())
		if err != nil {
			return nil, err
		}
	}

	cacheOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithNetworkStatus(monitor),
		cache.WithCodec(cd),
		cache.WithNotifier(o.notifier),
	}
	if store != nil {
		cacheOpts = append(cacheOpts, cache.WithPersister(store))
	}
	cacheOpts = append(cacheOpts, o.cacheOpts...)

	cc, err := cache.NewClient(cfg.CacheConfig(), cacheOpts...)
	if err != nil {
		closeStore(store, o.store)
		return nil, err
	}

	c := &Container{
		config:    cfg,
		logger:    logger,
		store:     store,
		ownsStore: store != nil && o.store == nil,
		transport: tc,
		monitor:   monitor,
		prober:    prober,
		cache:     cc,
	}

	c.expenses, err = NewHooks[expense.Expense](c, cfg.API.Resource)
	if err != nil {
		_ = cc.Close(ctx)
		closeStore(store, o.store)
		return nil, err
	}
	return c, nil
}

// NewContainerWithDefaults builds a container from config.Default().
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, config.Default(), opts...)
}

func transportOptions(o options, logger logging.Logger) []transport.Option {
	opts := []transport.Option{transport.WithLogger(logger)}
	if o.httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(o.httpClient))
	}
	return opts
}

// closeStore closes s unless it was supplied by the caller.
func closeStore(s, supplied persist.Store) {
	if s != nil && s != supplied {
		_ = persist.Close(s)
	}
}

// NewLogger builds the logger named by cfg.Adapter.
func NewLogger(cfg config.Logging, out io.Writer) (logging.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	switch cfg.Adapter {
	case config.AdapterZerolog, "":
		return zerologlog.New(out, cfg.Level, cfg.Format != config.FormatJSON), nil
	case config.AdapterZap:
		return zaplog.New(out, cfg.Level, cfg.Format == config.FormatConsole), nil
	case config.AdapterLogrus:
		l := logruslog.New(cfg.Level)
		l.E.Logger.SetOutput(out)
		return l, nil
	case config.AdapterSlog:
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
		hopts := &slog.HandlerOptions{Level: level}
		var h slog.Handler = slog.NewTextHandler(out, hopts)
		if cfg.Format == config.FormatJSON {
			h = slog.NewJSONHandler(out, hopts)
		}
		return sloglog.Logger{L: slog.New(h)}, nil
	default:
		return nil, goerrors.New("unknown logger adapter "+cfg.Adapter, goerrors.CategoryValidation)
	}
}

// NewHooks binds a resource to the container's cache and transport.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewHooks[Invoice](container, "invoices")
func NewHooks[T any](c *Container, path string, opts ...resourcecache.Option) (*resourcecache.Hooks[T], error) {
	base := []resourcecache.Option{
		resourcecache.WithPageLimit(c.config.API.PageLimit),
		resourcecache.WithLogger(c.logger),
	}
	return resourcecache.New(c.cache, resource.New[T](c.transport, path), append(base, opts...)...)
}

// Start restores the persisted snapshot and, unless the configuration
// forces offline mode, probes connectivity once. Queued writes are replayed
// as part of the restore when the client is online.
func (c *Container) Start(ctx context.Context) (cache.RestoreReport, error) {
	if !c.config.Online.ForceOffline {
		c.prober.Check(ctx)
	}
	report, err := c.cache.Restore(ctx)
	if err != nil {
		return report, err
	}
	if report.Discarded {
		c.logger.Warn("persisted snapshot discarded", logging.Fields{"reason": report.Reason})
	}
	return report, nil
}

// RunProber keeps the monitor current until ctx is done. It returns at once
// in forced offline mode.
func (c *Container) RunProber(ctx context.Context) {
	if c.config.Online.ForceOffline {
		return
	}
	c.prober.Run(ctx)
}

// Close flushes the cache snapshot and closes the snapshot store, unless the
// store was supplied with WithStore.
func (c *Container) Close(ctx context.Context) error {
	err := c.cache.Close(ctx)
	if c.ownsStore {
		if cerr := persist.Close(c.store); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Cache returns the cache client.
func (c *Container) Cache() *cache.Client { return c.cache }

// Expenses returns the hooks bound to the configured expense resource.
func (c *Container) Expenses() *resourcecache.Hooks[expense.Expense] { return c.expenses }

// Transport returns the REST client.
func (c *Container) Transport() *transport.Client { return c.transport }

// Monitor returns the connectivity monitor.
func (c *Container) Monitor() *online.Monitor { return c.monitor }

// Prober returns the connectivity prober.
func (c *Container) Prober() *online.Prober { return c.prober }

// Store returns the snapshot store, or nil when persistence is disabled.
func (c *Container) Store() persist.Store { return c.store }

// Logger returns the container logger.
func (c *Container) Logger() logging.Logger { return c.logger }

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() config.Config { return c.config }
