package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// evalInvasions emits one event per unseen invasion carrying a rare reward.
// Emission order follows the snapshot's invasion sequence (feed order).
// Completed invasions and invasions that later disappear from the feed are
// never revisited; their markers age out via compaction.
func (e *Engine) evalInvasions(ctx context.Context, cur *snap.Snapshot, now time.Time, view View, res *Result) error {
	for _, inv := range cur.Invasions {
		if inv.Completed || inv.ID == "" {
			continue
		}
		if !e.hasRareReward(inv.RewardTags) {
			continue
		}
		key := snap.InvasionKey(inv.ID)
		has, err := view.Has(ctx, key)
		if err != nil {
			return fmt.Errorf("invasion check %s: %w", inv.ID, err)
		}
		if has {
			continue
		}
		res.Events = append(res.Events, snap.Event{
			Domain:   snap.DomainInvasion,
			Kind:     snap.KindInvasionRare,
			DedupKey: key,
			Title:    "Rare invasion reward",
			Body: fmt.Sprintf("%s — %s vs %s",
				inv.Node, inv.AttackingFaction, inv.DefendingFaction),
			SourceID: inv.ID,
			Fields: []snap.Field{
				{Name: "Attacker reward", Value: orNone(inv.AttackerReward), Inline: true},
				{Name: "Defender reward", Value: orNone(inv.DefenderReward), Inline: true},
				{Name: "Progress", Value: fmt.Sprintf("%.1f%%", inv.Progress), Inline: false},
			},
			At: now,
		})
		res.Batch.AddMark(key, snap.DomainInvasion, now)
	}
	return nil
}

func (e *Engine) hasRareReward(tags []string) bool {
	for _, tag := range tags {
		if e.rare[tag] {
			return true
		}
	}
	return false
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
