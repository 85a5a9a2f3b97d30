package online

import (
	"context"
	"time"

	"github.com/goliatone/go-query-cache/faults"
	"github.com/goliatone/go-query-cache/logging"
)

// Pinger checks that the API can be reached.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Prober drives a Monitor from periodic pings. Any answer from the server,
// including a rejection, counts as online; only network errors count as
// offline.
type Prober struct {
	pinger   Pinger
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithInterval sets the time between probes. The default is 15s.
func WithInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTimeout bounds each probe. The default is 3s.
func WithTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the prober logger.
func WithLogger(l logging.Logger) ProberOption {
	return func(p *Prober) { p.logger = logging.OrNop(l) }
}

func NewProber(pinger Pinger, monitor *Monitor, opts ...ProberOption) *Prober {
	p := &Prober{
		pinger:   pinger,
		monitor:  monitor,
		interval: 15 * time.Second,
		timeout:  3 * time.Second,
		logger:   logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check runs one probe, updates the monitor and returns the new state.
func (p *Prober) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(pctx)
	isOnline := err == nil || !faults.IsNetwork(err)
	if err != nil {
		p.logger.Debug("probe failed", logging.Fields{"error": err.Error(), "online": isOnline})
	}
	if p.monitor.SetOnline(isOnline) {
		p.logger.Info("connectivity changed", logging.Fields{"online": isOnline})
	}
	return isOnline
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
