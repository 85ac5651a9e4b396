// Package rules implements per-domain change detection.
//
// Each rule is a pure evaluation over (previous snapshot, current snapshot,
// ledger view, now): it returns events to emit plus the ledger writes that
// record them. Nothing here touches the clock or the network; the poller
// injects "now" and the caller commits the batch before dispatching.
package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/tennolabs/tennowatch/worldstate/internal/ledger"
	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// View is read access to the dedup ledger during an evaluation pass.
type View interface {
	Has(ctx context.Context, key string) (bool, error)
	LastValue(ctx context.Context, name string) (string, error)
}

// Config configures the rule engine.
type Config struct {
	// PreAnnounceLead is how far ahead of arrival the trader
	// pre-announcement fires. Default: 72h.
	PreAnnounceLead time.Duration
	// RareRewards is the reward tag set that makes an invasion
	// notification-worthy.
	RareRewards []string
	// EmitOnFirstCycle controls the very first observation after a restart
	// with no previous snapshot. By default the Steel Path fissures already
	// present are seeded: marked pushed silently, so a fresh ledger does
	// not produce a burst. Set true to emit the initial population once
	// instead.
	EmitOnFirstCycle bool
}

func (c *Config) defaults() {
	if c.PreAnnounceLead <= 0 {
		c.PreAnnounceLead = 72 * time.Hour
	}
	if c.RareRewards == nil {
		c.RareRewards = DefaultRareRewards()
	}
}

// DefaultRareRewards returns the built-in high-value reward tag set.
func DefaultRareRewards() []string {
	return []string{
		"Forma",
		"OrokinCatalyst",
		"OrokinReactor",
		"AuraForma",
		"Riven",
		"SentinelWeaponBP",
		"AladVCoordinates",
	}
}

// Result is the outcome of one evaluation pass: events in emission order and
// the ledger writes that must be committed before any event is dispatched.
type Result struct {
	Events []snap.Event
	Batch  ledger.Batch
}

// Engine evaluates all domain rules over a pair of snapshots.
type Engine struct {
	cfg    Config
	rare   map[string]bool
	logger *slog.Logger
}

// New creates an Engine.
func New(cfg Config, logger *slog.Logger) *Engine {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	rare := make(map[string]bool, len(cfg.RareRewards))
	for _, tag := range cfg.RareRewards {
		rare[tag] = true
	}
	return &Engine{cfg: cfg, rare: rare, logger: logger}
}

// Evaluate runs every domain rule against the current snapshot. prev is nil
// on the very first cycle after startup. Event order is deterministic:
// trader, invasions (feed order), fissures, earth cycle.
func (e *Engine) Evaluate(ctx context.Context, prev, cur *snap.Snapshot, now time.Time, view View) (*Result, error) {
	res := &Result{}

	if err := e.evalTrader(ctx, cur, now, view, res); err != nil {
		return nil, err
	}
	if err := e.evalInvasions(ctx, cur, now, view, res); err != nil {
		return nil, err
	}
	if err := e.evalFissures(ctx, prev, cur, now, view, res); err != nil {
		return nil, err
	}
	if err := e.evalEarth(ctx, cur, now, view, res); err != nil {
		return nil, err
	}

	if len(res.Events) > 0 {
		e.logger.Debug("rules evaluated",
			"events", len(res.Events),
			"marks", len(res.Batch.Marks))
	}
	return res, nil
}
