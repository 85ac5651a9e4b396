// Package worldstate runs the poll-evaluate-commit-dispatch loop over a game
// world-state feed and fans detected changes out to notification sinks.
//
// Crash safety is commit-before-dispatch: the dedup ledger is durably
// committed before any sink is called, so a crash between commit and
// dispatch loses at most that cycle's notifications and never duplicates
// earlier ones.
package worldstate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tennolabs/tennowatch/worldstate/internal/ledger"
	"github.com/tennolabs/tennowatch/worldstate/internal/poller"
	"github.com/tennolabs/tennowatch/worldstate/internal/rules"
	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// FetchFunc produces a fresh normalized snapshot.
type FetchFunc func(ctx context.Context) (*Snapshot, error)

// Status is a point-in-time view of the service for the status API.
type Status struct {
	StartedAt   time.Time `json:"started_at"`
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
	Cycles      int64     `json:"cycles"`
	Events      int64     `json:"events"`
	Snapshot    *Snapshot `json:"snapshot,omitempty"`
}

// Service wires the feed, rule engine, dedup ledger and sinks together.
type Service struct {
	config Config
	fetch  FetchFunc
	sinks  []Sink
	ledger *ledger.Ledger
	engine *rules.Engine
	poll   *poller.Poller
	logger *slog.Logger

	// pollOpts is filled by options before the poller is built in New.
	pollOpts []poller.Option

	mu     sync.Mutex
	status Status
	recent []Event
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the evaluation clock. Used in tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		s.pollOpts = append(s.pollOpts, poller.WithClock(fn))
	}
}

// New creates a Service over an already-opened ledger database. The ledger
// schema is applied idempotently.
func New(db *sql.DB, fetch FetchFunc, sinks []Sink, cfg Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := ledger.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("worldstate: apply schema: %w", err)
	}

	s := &Service{
		config: cfg,
		fetch:  fetch,
		sinks:  sinks,
		ledger: ledger.New(db),
		engine: rules.New(cfg.rules(), logger.With("component", "rules")),
		logger: logger,
		status: Status{StartedAt: time.Now()},
	}
	for _, o := range opts {
		o(s)
	}
	s.poll = poller.New(
		poller.FetchFunc(s.fetchWrapped),
		s.runCycle,
		poller.Config{
			Interval:   cfg.PollInterval,
			BackoffMin: cfg.BackoffMin,
			BackoffMax: cfg.BackoffMax,
		},
		logger.With("component", "poller"),
		s.pollOpts...,
	)
	return s, nil
}

// Run polls until ctx is cancelled, compacting the ledger in the background.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.poll.Run(gctx) })
	g.Go(func() error { return s.compactLoop(gctx) })
	return g.Wait()
}

// RunOnce performs exactly one fetch-evaluate-dispatch cycle. Used by the
// -once mode for cron-style operation.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.poll.RunOnce(ctx)
}

// Reset clears all dedup memory. Every currently-live entity will be
// re-announced on the next cycle.
func (s *Service) Reset(ctx context.Context) error {
	return s.ledger.Reset(ctx)
}

// Status returns a copy of the current service status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Snapshot = st.Snapshot.Clone()
	return st
}

// Recent returns the most recently dispatched events, newest last.
func (s *Service) Recent() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *Service) fetchWrapped(ctx context.Context) (*snap.Snapshot, error) {
	s.mu.Lock()
	s.status.LastAttempt = time.Now()
	s.mu.Unlock()

	cur, err := s.fetch(ctx)
	if err != nil {
		s.mu.Lock()
		s.status.LastError = err.Error()
		s.mu.Unlock()
		return nil, err
	}
	return cur, nil
}

// runCycle is one evaluation pass. Ordering is deliberate: evaluate, commit
// the ledger batch, then dispatch. A commit failure abandons the cycle before
// anything is sent, so duplicate suppression never depends on delivery.
func (s *Service) runCycle(ctx context.Context, prev, cur *snap.Snapshot, now time.Time) error {
	res, err := s.engine.Evaluate(ctx, prev, cur, now, s.ledger)
	if err != nil {
		s.noteError(err)
		return fmt.Errorf("evaluate: %w", err)
	}

	if err := s.ledger.Commit(ctx, &res.Batch); err != nil {
		s.noteError(err)
		return fmt.Errorf("commit: %w", err)
	}

	// Past this point the cycle always succeeds: deliveries are best-effort.
	for i := range res.Events {
		res.Events[i].ID = uuid.NewString()
		s.dispatch(ctx, res.Events[i])
	}

	s.mu.Lock()
	s.status.Cycles++
	s.status.Events += int64(len(res.Events))
	s.status.LastSuccess = time.Now()
	s.status.LastError = ""
	s.status.Snapshot = cur.Clone()
	s.recent = append(s.recent, res.Events...)
	if overflow := len(s.recent) - s.config.EventBuffer; overflow > 0 {
		s.recent = append(s.recent[:0], s.recent[overflow:]...)
	}
	s.mu.Unlock()

	if len(res.Events) > 0 {
		s.logger.Info("cycle dispatched",
			"events", len(res.Events), "marks", len(res.Batch.Marks))
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, ev Event) {
	for _, sink := range s.sinks {
		sctx, cancel := context.WithTimeout(ctx, s.config.DispatchTimeout)
		err := sink.Send(sctx, ev)
		cancel()
		if err != nil {
			s.logger.Error("sink delivery failed",
				"sink", sink.Name(), "event", ev.ID,
				"kind", ev.Kind, "error", err)
		}
	}
}

func (s *Service) compactLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.config.CompactInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.compactOnce(ctx)
		}
	}
}

// compactOnce sweeps aged-out markers. Keys for entities still present in
// the latest snapshot are exempt regardless of age: a long-running invasion
// must keep its marker or it would be re-announced.
func (s *Service) compactOnce(ctx context.Context) {
	s.mu.Lock()
	live := s.status.Snapshot.LiveKeys()
	s.mu.Unlock()

	cutoff := time.Now().Add(-s.config.Retention)
	domains := []Domain{DomainTrader, DomainInvasion, DomainFissure}
	n, err := s.ledger.Compact(ctx, domains, cutoff, live)
	if err != nil {
		s.logger.Warn("ledger compaction failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("ledger compacted", "removed", n, "live", len(live))
	}
}

func (s *Service) noteError(err error) {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.mu.Unlock()
}
