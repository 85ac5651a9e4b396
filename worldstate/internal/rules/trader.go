package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// evalTrader runs the two-flag trader state machine. The composite key
// trader:{name}:{arrival} identifies one visit; the :pre and :arrived flags
// are independent, so an arrival observed without a prior pre-announcement
// (e.g. first poll finds the trader already active) still fires. A trader
// that is already active never gets a pre-announcement.
func (e *Engine) evalTrader(ctx context.Context, cur *snap.Snapshot, now time.Time, view View, res *Result) error {
	t := cur.Trader
	if t == nil {
		return nil
	}

	if t.Active {
		key := snap.TraderArrivedKey(t.Name, t.Arrival)
		has, err := view.Has(ctx, key)
		if err != nil {
			return fmt.Errorf("trader arrived check: %w", err)
		}
		if !has {
			res.Events = append(res.Events, snap.Event{
				Domain:   snap.DomainTrader,
				Kind:     snap.KindTraderArrived,
				DedupKey: key,
				Title:    "Void trader has arrived",
				Body:     fmt.Sprintf("%s is now at %s", t.Name, t.Location),
				SourceID: t.ID,
				Fields: []snap.Field{
					{Name: "Remaining", Value: fmtCountdown(t.Departure, now), Inline: true},
					{Name: "Departs", Value: fmtUTC(t.Departure), Inline: true},
				},
				At: now,
			})
			res.Batch.AddMark(key, snap.DomainTrader, now)
		}
		return nil
	}

	// Not yet arrived: pre-announce inside the lead window.
	wait := t.Arrival.Sub(now)
	if wait <= 0 || wait > e.cfg.PreAnnounceLead {
		return nil
	}
	key := snap.TraderPreKey(t.Name, t.Arrival)
	has, err := view.Has(ctx, key)
	if err != nil {
		return fmt.Errorf("trader pre-announce check: %w", err)
	}
	if has {
		return nil
	}
	res.Events = append(res.Events, snap.Event{
		Domain:   snap.DomainTrader,
		Kind:     snap.KindTraderInbound,
		DedupKey: key,
		Title:    "Void trader inbound",
		Body: fmt.Sprintf("%s arrives at %s within %s",
			t.Name, t.Location, fmtLead(e.cfg.PreAnnounceLead)),
		SourceID: t.ID,
		Fields: []snap.Field{
			{Name: "Arrives", Value: fmtUTC(t.Arrival), Inline: true},
			{Name: "Countdown", Value: fmtCountdown(t.Arrival, now), Inline: true},
			{Name: "Departs", Value: fmtUTC(t.Departure), Inline: true},
		},
		At: now,
	})
	res.Batch.AddMark(key, snap.DomainTrader, now)
	return nil
}

func fmtLead(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d days", int(d.Hours())/24)
	}
	return d.String()
}
