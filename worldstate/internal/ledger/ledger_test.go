package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/tennolabs/tennowatch/dbopen"
	"github.com/tennolabs/tennowatch/worldstate/internal/snap"

	_ "modernc.org/sqlite"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return New(db)
}

func TestMarkOnceStaysMarked(t *testing.T) {
	// WHAT: A committed marker is visible and survives re-commit.
	// WHY: At-most-once notification depends on markers never un-marking.
	l := openTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	has, err := l.Has(ctx, "invasion:abc")
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Fatal("fresh ledger should not contain invasion:abc")
	}

	var b Batch
	b.AddMark("invasion:abc", snap.DomainInvasion, now)
	if err := l.Commit(ctx, &b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	has, err = l.Has(ctx, "invasion:abc")
	if err != nil {
		t.Fatalf("has after commit: %v", err)
	}
	if !has {
		t.Fatal("marker should be set after commit")
	}

	// Re-marking the same key is a no-op, not an error.
	var b2 Batch
	b2.AddMark("invasion:abc", snap.DomainInvasion, now.Add(time.Hour))
	if err := l.Commit(ctx, &b2); err != nil {
		t.Fatalf("re-commit: %v", err)
	}
}

func TestCommitIsAtomic(t *testing.T) {
	// WHAT: A batch with a failing write applies none of its marks.
	// WHY: Partial application of a cycle's writes must not happen.
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	l := New(db)
	ctx := context.Background()

	// Drop last_values so the value write in the batch fails mid-tx.
	if _, err := db.Exec(`DROP TABLE last_values`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	var b Batch
	b.AddMark("fissure:f1", snap.DomainFissure, time.Now())
	b.SetValue("earthcycle", "day:100", time.Now())
	if err := l.Commit(ctx, &b); err == nil {
		t.Fatal("commit should fail when a write cannot be applied")
	}

	has, err := l.Has(ctx, "fissure:f1")
	if err != nil {
		t.Fatalf("has: %v", err)
	}
	if has {
		t.Error("mark from a failed batch must not be visible")
	}
}

func TestLastValueSupersedes(t *testing.T) {
	// WHAT: A last-value slot keeps only the most recent write.
	l := openTestLedger(t)
	ctx := context.Background()

	v, err := l.LastValue(ctx, snap.EarthCycleName)
	if err != nil {
		t.Fatalf("last value: %v", err)
	}
	if v != "" {
		t.Fatalf("fresh slot: got %q, want empty", v)
	}

	var b Batch
	b.SetValue(snap.EarthCycleName, "day:100", time.Now())
	if err := l.Commit(ctx, &b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var b2 Batch
	b2.SetValue(snap.EarthCycleName, "night:200", time.Now())
	if err := l.Commit(ctx, &b2); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	v, err = l.LastValue(ctx, snap.EarthCycleName)
	if err != nil {
		t.Fatalf("last value: %v", err)
	}
	if v != "night:200" {
		t.Errorf("last value: got %q, want night:200", v)
	}
}

func TestCompactDropsOnlyOldMarkers(t *testing.T) {
	// WHAT: Compact removes aged-out markers for the named domains and
	// leaves young markers, other domains, and last-values alone.
	l := openTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	var b Batch
	b.AddMark("invasion:old", snap.DomainInvasion, now.Add(-96*time.Hour))
	b.AddMark("invasion:new", snap.DomainInvasion, now)
	b.AddMark("trader:Baro:1:arrived", snap.DomainTrader, now.Add(-96*time.Hour))
	b.SetValue(snap.EarthCycleName, "day:100", now.Add(-96*time.Hour))
	if err := l.Commit(ctx, &b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	n, err := l.Compact(ctx, []snap.Domain{snap.DomainInvasion, snap.DomainFissure}, now.Add(-72*time.Hour), nil)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if n != 1 {
		t.Errorf("compacted: got %d, want 1", n)
	}

	for key, want := range map[string]bool{
		"invasion:old":          false,
		"invasion:new":          true,
		"trader:Baro:1:arrived": true,
	} {
		has, err := l.Has(ctx, key)
		if err != nil {
			t.Fatalf("has %s: %v", key, err)
		}
		if has != want {
			t.Errorf("%s: has=%v, want %v", key, has, want)
		}
	}

	v, _ := l.LastValue(ctx, snap.EarthCycleName)
	if v != "day:100" {
		t.Errorf("last value after compact: got %q, want day:100", v)
	}
}

func TestCompactKeepsLiveMarkers(t *testing.T) {
	// WHAT: A marker older than the cutoff survives compaction while its
	// key is in the live set; once the key leaves the set it is swept.
	// WHY: An entity can outlive the retention window while still in the
	// feed; dropping its marker would announce it a second time.
	l := openTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	var b Batch
	b.AddMark("invasion:long-running", snap.DomainInvasion, now.Add(-96*time.Hour))
	b.AddMark("invasion:gone", snap.DomainInvasion, now.Add(-96*time.Hour))
	if err := l.Commit(ctx, &b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	domains := []snap.Domain{snap.DomainInvasion}
	cutoff := now.Add(-72 * time.Hour)
	n, err := l.Compact(ctx, domains, cutoff, []string{"invasion:long-running"})
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if n != 1 {
		t.Errorf("compacted: got %d, want 1", n)
	}
	if has, _ := l.Has(ctx, "invasion:long-running"); !has {
		t.Error("live marker must survive compaction regardless of age")
	}
	if has, _ := l.Has(ctx, "invasion:gone"); has {
		t.Error("aged-out marker for an absent entity should be swept")
	}

	n, err = l.Compact(ctx, domains, cutoff, nil)
	if err != nil {
		t.Fatalf("second compact: %v", err)
	}
	if n != 1 {
		t.Errorf("second compact: got %d, want 1", n)
	}
	if has, _ := l.Has(ctx, "invasion:long-running"); has {
		t.Error("marker should be swept once its entity is no longer live")
	}
}

func TestReset(t *testing.T) {
	// WHAT: Reset clears markers and last-values.
	l := openTestLedger(t)
	ctx := context.Background()

	var b Batch
	b.AddMark("fissure:f1", snap.DomainFissure, time.Now())
	b.SetValue(snap.EarthCycleName, "day:1", time.Now())
	if err := l.Commit(ctx, &b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := l.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	has, _ := l.Has(ctx, "fissure:f1")
	if has {
		t.Error("marker should be gone after reset")
	}
	v, _ := l.LastValue(ctx, snap.EarthCycleName)
	if v != "" {
		t.Errorf("last value after reset: got %q, want empty", v)
	}
}

func TestStats(t *testing.T) {
	// WHAT: Stats counts markers per domain.
	l := openTestLedger(t)
	ctx := context.Background()

	var b Batch
	b.AddMark("invasion:a", snap.DomainInvasion, time.Now())
	b.AddMark("invasion:b", snap.DomainInvasion, time.Now())
	b.AddMark("fissure:c", snap.DomainFissure, time.Now())
	if err := l.Commit(ctx, &b); err != nil {
		t.Fatalf("commit: %v", err)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[snap.DomainInvasion] != 2 || stats[snap.DomainFissure] != 1 {
		t.Errorf("stats: got %v", stats)
	}
}
