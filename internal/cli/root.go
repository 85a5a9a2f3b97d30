// Package cli implements the expensectl commands on top of the expense
// hooks. Every run restores the persisted cache, probes connectivity,
// executes one command and writes the snapshot back.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/config"
	"github.com/goliatone/go-query-cache/logging"
	"github.com/goliatone/go-query-cache/pkg/di"
)

// isTerminal checks if the given writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Option configures the root command, mostly for tests.
type Option func(*app)

// WithContainerOptions passes extra options to the container built per run.
func WithContainerOptions(opts ...di.Option) Option {
	return func(a *app) { a.containerOpts = append(a.containerOpts, opts...) }
}

// WithLocation sets the time zone dates are shown in. The default is Local.
func WithLocation(loc *time.Location) Option {
	return func(a *app) { a.loc = loc }
}

// WithLookupEnv replaces os.LookupEnv for configuration overrides.
func WithLookupEnv(fn config.LookupFunc) Option {
	return func(a *app) { a.lookupEnv = fn }
}

type app struct {
	configPath string
	debug      bool
	offline    bool

	containerOpts []di.Option
	loc           *time.Location
	lookupEnv     config.LookupFunc

	container *di.Container
	logger    logging.Logger
}

// NewRootCmd creates the root Cobra command for expensectl.
func NewRootCmd(version string, opts ...Option) *cobra.Command {
	a := &app{loc: time.Local, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(a)
	}

	cmd := &cobra.Command{
		Use:           "expensectl",
		Short:         "Offline-first expense tracker client",
		Long:          "expensectl reads and writes expenses through a local query cache. Writes made offline are queued and replayed on the next online run.",
		Version:       version,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&a.offline, "offline", false, "work offline: queue writes and skip the connectivity probe")

	cmd.AddCommand(
		newListCmd(a),
		newGetCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newSyncCmd(a),
		newStatusCmd(a),
		newCancelCmd(a),
	)
	return cmd
}

const rootCmdExample = `  # List the newest travel expenses, two pages deep
  expensectl list --category travel --pages 2

  # Record an expense while offline, then sync it later
  expensectl --offline add --title "Taxi" --amount 23.40 --category travel
  expensectl sync

  # Inspect the queue of pending writes
  expensectl status`

// open loads the configuration, builds the container and restores state.
func (a *app) open(cmd *cobra.Command) error {
	if skipsContainer(cmd) {
		return nil
	}

	path := a.configPath
	if path == "" {
		if v, ok := a.lookupEnv(config.EnvPrefix + "CONFIG"); ok {
			path = v
		}
	}

	cfg, err := config.LoadEnv(path, a.lookupEnv)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = config.FormatConsole
	}
	if a.offline {
		cfg.Online.ForceOffline = true
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
		cmd.SetContext(ctx)
	}

	opts := []di.Option{
		di.WithLogOutput(cmd.ErrOrStderr()),
		di.WithNotifier(newNoticePrinter(cmd.ErrOrStderr())),
	}
	c, err := di.NewContainer(ctx, cfg, append(opts, a.containerOpts...)...)
	if err != nil {
		return err
	}
	a.container = c
	a.logger = c.Logger()

	report, err := c.Start(ctx)
	if err != nil {
		_ = a.close(ctx)
		return err
	}
	a.logger.Debug("command started", logging.Fields{
		"command":   cmd.Name(),
		"online":    c.Monitor().IsOnline(),
		"queries":   report.Queries,
		"mutations": report.Mutations,
		"replayed":  report.Resume.Applied,
	})
	return nil
}

// skipsContainer reports whether cmd runs without config or network, like
// help and shell completion.
func skipsContainer(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

func (a *app) close(ctx context.Context) error {
	if a.container == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.container.Close(ctx)
	a.container = nil
	return err
}

// runE closes the container when fn fails, since cobra skips
// PersistentPostRunE after an error.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			if cerr := a.close(cmd.Context()); cerr != nil {
				a.logger.Warn("close failed", logging.Fields{"error": cerr.Error()})
			}
		}
		return err
	}
}

// noticePrinter writes notices to stderr, the way a toast would show them.
type noticePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newNoticePrinter(out io.Writer) *noticePrinter {
	return &noticePrinter{out: out}
}

func (p *noticePrinter) Notify(_ context.Context, n cache.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n.Err != nil && n.Level == cache.LevelError {
		_, _ = fmt.Fprintf(p.out, "[%s] %s: %v\n", n.Level, n.Message, n.Err)
		return
	}
	_, _ = fmt.Fprintf(p.out, "[%s] %s\n", n.Level, n.Message)
}
