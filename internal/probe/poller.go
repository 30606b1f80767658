// Package probe turns periodic device queries into normalized call signals.
//
// The poller shells out to the device-control tool on a fixed interval,
// parses the free-text status dump, and feeds the result into the lifecycle
// state machine. Probe failures are logged and mapped to idle — the loop
// never stops on a transient tool failure; it simply retries next tick.
package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/ringward/ringward/internal/call"
	"github.com/ringward/ringward/internal/observe"
)

// DefaultPollInterval is the device query cadence.
const DefaultPollInterval = 300 * time.Millisecond

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the query cadence.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithPollerLogger sets the logger. Defaults to slog.Default.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.log = l
	}
}

// WithPollerMetrics sets the metrics recorder. Defaults to observe.DefaultMetrics.
func WithPollerMetrics(m *observe.Metrics) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

// Poller drives the probe loop: query, parse, apply.
type Poller struct {
	transport Transport
	machine   *call.Machine
	interval  time.Duration
	log       *slog.Logger
	metrics   *observe.Metrics

	// degraded tracks whether the previous tick failed, so an outage logs
	// once at warn level instead of flooding every 300 ms.
	degraded bool
}

// NewPoller creates a poller feeding machine from transport.
func NewPoller(transport Transport, machine *call.Machine, opts ...PollerOption) *Poller {
	p := &Poller{
		transport: transport,
		machine:   machine,
		interval:  DefaultPollInterval,
		log:       slog.Default(),
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ResolveNumber implements the pickup-edge number re-resolution hook: side
// channel first, incoming-number field from the current dump as fallback.
// Suitable for call.WithNumberResolver. Best effort; returns "" on failure.
func (p *Poller) ResolveNumber() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if n, err := p.transport.ReadNumberFile(ctx); err == nil && PlausibleNumber(n) {
		return n
	}
	raw, err := p.transport.QueryCallState(ctx)
	if err != nil {
		return ""
	}
	return parseIncomingNumber(raw)
}

// Run polls until ctx is cancelled. Always returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("probe poller started", "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("probe poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one query/parse/apply cycle.
func (p *Poller) tick(ctx context.Context) {
	start := time.Now()
	raw, err := p.transport.QueryCallState(ctx)
	p.metrics.RecordProbe(ctx, time.Since(start), err == nil)

	if err != nil {
		if !p.degraded {
			p.log.Warn("device probe failing, treating as idle until it recovers", "error", err)
			p.degraded = true
		}
		p.machine.Apply(call.Signal{State: call.Idle, ObservedAt: time.Now()})
		return
	}
	if p.degraded {
		p.log.Info("device probe recovered")
		p.degraded = false
	}

	p.machine.Apply(ParseCallState(raw))
}
