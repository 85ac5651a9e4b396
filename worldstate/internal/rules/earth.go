package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// evalEarth emits when the (phase, started-at) pair differs from the last
// successfully announced pair. Only the most recent cycle matters, so the
// ledger keeps a single superseding value instead of a growing key set.
func (e *Engine) evalEarth(ctx context.Context, cur *snap.Snapshot, now time.Time, view View, res *Result) error {
	ec := cur.Earth
	if ec == nil {
		return nil
	}

	val := snap.EarthCycleValue(ec.Phase, ec.StartedAt)
	last, err := view.LastValue(ctx, snap.EarthCycleName)
	if err != nil {
		return fmt.Errorf("earth cycle check: %w", err)
	}
	if last == val {
		return nil
	}

	label := "Day"
	next := "Night"
	if ec.Phase == snap.PhaseNight {
		label = "Night"
		next = "Day"
	}
	res.Events = append(res.Events, snap.Event{
		Domain:   snap.DomainEarth,
		Kind:     snap.KindEarthCycle,
		DedupKey: snap.EarthCycleKey(ec.Phase, ec.StartedAt),
		Title:    "Earth cycle changed",
		Body:     fmt.Sprintf("Earth is now in %s", label),
		SourceID: val,
		Fields: []snap.Field{
			{Name: "Current", Value: label, Inline: true},
			{Name: "Remaining", Value: fmtCountdown(ec.Expiry, now), Inline: true},
			{Name: "Next", Value: next, Inline: true},
		},
		At: now,
	})
	res.Batch.SetValue(snap.EarthCycleName, val, now)
	return nil
}
