// Package poller drives the poll-evaluate-commit-dispatch cycle.
//
// The loop is strictly sequential: the next cycle is scheduled relative to
// the end of the previous one, so slow fetches or dispatches never overlap.
// The previous snapshot is owned by the loop and advances only when a cycle
// fully succeeds.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// FetchFunc produces a fresh snapshot. Failures are transient: the poller
// backs off and retries without advancing the previous snapshot.
type FetchFunc func(ctx context.Context) (*snap.Snapshot, error)

// CycleFunc runs one evaluation pass: rules, ledger commit, dispatch.
// prev is nil on the very first cycle. An error abandons the cycle; it is
// retried on the next tick with the same previous snapshot.
type CycleFunc func(ctx context.Context, prev, cur *snap.Snapshot, now time.Time) error

// Config configures the poll loop.
type Config struct {
	// Interval between the end of one cycle and the start of the next.
	// Default: 1 minute.
	Interval time.Duration
	// BackoffMin is the first retry delay after a fetch failure.
	// Default: 5 seconds.
	BackoffMin time.Duration
	// BackoffMax caps the exponential retry delay. Default: 10 minutes.
	BackoffMax time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 5 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 10 * time.Minute
	}
}

// Poller owns the previous snapshot and the retry state.
type Poller struct {
	fetch  FetchFunc
	cycle  CycleFunc
	config Config
	logger *slog.Logger
	clock  func() time.Time

	prev     *snap.Snapshot
	failures int
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock overrides the evaluation clock. Used in tests.
func WithClock(fn func() time.Time) Option {
	return func(p *Poller) { p.clock = fn }
}

// New creates a Poller.
func New(fetch FetchFunc, cycle CycleFunc, cfg Config, logger *slog.Logger, opts ...Option) *Poller {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Poller{
		fetch:  fetch,
		cycle:  cycle,
		config: cfg,
		logger: logger,
		clock:  time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes cycles until ctx is cancelled. The first cycle starts
// immediately. Returns ctx.Err() on shutdown; an in-flight cycle is either
// completed or abandoned whole, never half-committed.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll cycle failed", "error", err, "failures", p.failures)
		}

		delay := p.config.Interval
		if p.failures > 0 {
			delay = p.backoffDelay()
			p.logger.Info("retrying after backoff", "delay", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce performs a single fetch-evaluate cycle. The previous snapshot
// advances only when the whole cycle succeeds.
func (p *Poller) RunOnce(ctx context.Context) error {
	cur, err := p.fetch(ctx)
	if err != nil {
		p.failures++
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	p.failures = 0

	if err := p.cycle(ctx, p.prev, cur, p.clock()); err != nil {
		// Abandoned cycle: prev stays put so the next tick re-detects
		// the same changes against an unchanged baseline.
		return fmt.Errorf("cycle: %w", err)
	}
	p.prev = cur
	return nil
}

// backoffDelay returns BackoffMin doubled per consecutive failure, capped
// at BackoffMax.
func (p *Poller) backoffDelay() time.Duration {
	d := p.config.BackoffMin
	for i := 1; i < p.failures; i++ {
		d *= 2
		if d >= p.config.BackoffMax {
			return p.config.BackoffMax
		}
	}
	if d > p.config.BackoffMax {
		return p.config.BackoffMax
	}
	return d
}
