package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// evalFissures implements the Steel Path fissure policy.
//
// A fissure id appearing in the current snapshot but not the previous one is
// a strong signal the upstream feed just refreshed, so it triggers a batch
// that also sweeps up any still-open Steel Path fissure the ledger has not
// recorded yet (e.g. missed during a restart). Without a new arrival, only
// unrecorded fissures are emitted. A fissure already marked pushed is never
// re-emitted in either mode. Expired fissures simply stop appearing; their
// markers are left to compaction.
//
// First cycle (no previous snapshot): by default the current population is
// marked silently so a restart with a fresh ledger does not burst; with
// EmitOnFirstCycle the fissures are treated as new and emitted once.
func (e *Engine) evalFissures(ctx context.Context, prev, cur *snap.Snapshot, now time.Time, view View, res *Result) error {
	if prev == nil && !e.cfg.EmitOnFirstCycle {
		seeded := 0
		for _, f := range cur.Fissures {
			if !f.SteelPath || f.ID == "" {
				continue
			}
			key := snap.FissureKey(f.ID)
			has, err := view.Has(ctx, key)
			if err != nil {
				return fmt.Errorf("fissure seed check %s: %w", f.ID, err)
			}
			if !has {
				res.Batch.AddMark(key, snap.DomainFissure, now)
				seeded++
			}
		}
		if seeded > 0 {
			e.logger.Info("fissures seeded silently", "count", seeded)
		}
		return nil
	}

	var prevIDs map[string]bool
	if prev != nil {
		prevIDs = prev.FissureIDs()
	}

	newArrivals := 0
	for _, f := range cur.Fissures {
		if f.SteelPath && f.ID != "" && !prevIDs[f.ID] {
			newArrivals++
		}
	}

	emitted := 0
	for _, f := range cur.Fissures {
		if !f.SteelPath || f.ID == "" {
			continue
		}
		key := snap.FissureKey(f.ID)
		has, err := view.Has(ctx, key)
		if err != nil {
			return fmt.Errorf("fissure check %s: %w", f.ID, err)
		}
		if has {
			continue
		}
		res.Events = append(res.Events, snap.Event{
			Domain:   snap.DomainFissure,
			Kind:     snap.KindFissureUpdate,
			DedupKey: key,
			Title:    "Steel Path fissure",
			Body:     fmt.Sprintf("%s — %s fissure", f.Node, f.Tier),
			SourceID: f.ID,
			Fields: []snap.Field{
				{Name: "Mission", Value: f.MissionType, Inline: true},
				{Name: "Remaining", Value: fmtCountdown(f.Expiry, now), Inline: true},
				{Name: "Expires", Value: fmtUTC(f.Expiry), Inline: true},
			},
			At: now,
		})
		res.Batch.AddMark(key, snap.DomainFissure, now)
		emitted++
	}

	if newArrivals > 0 && emitted > newArrivals {
		e.logger.Info("fissure refresh rebroadcast",
			"new", newArrivals, "emitted", emitted)
	}
	return nil
}
