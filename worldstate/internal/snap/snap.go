// Package snap defines the normalized world-state snapshot and the
// notification events derived from it.
//
// A Snapshot is one point-in-time view across all monitored domains. It is
// produced fresh each poll by the feed adapter and discarded after the rule
// pass; only the previous cycle's snapshot is retained, to support
// set-difference detection.
package snap

import (
	"fmt"
	"time"
)

// Phase is the Earth day/night cycle phase.
type Phase string

const (
	PhaseDay   Phase = "day"
	PhaseNight Phase = "night"
)

// Domain identifies which monitored domain produced an event or marker.
type Domain string

const (
	DomainTrader   Domain = "trader"
	DomainInvasion Domain = "invasion"
	DomainFissure  Domain = "fissure"
	DomainEarth    Domain = "earthcycle"
)

// Trader is the rotating void trader. Present in a snapshot only when a
// visit is scheduled or in progress.
type Trader struct {
	ID        string
	Name      string
	Location  string
	Active    bool
	Arrival   time.Time
	Departure time.Time
}

// Invasion is one reward-bearing invasion mission.
type Invasion struct {
	ID               string
	Node             string
	AttackingFaction string
	DefendingFaction string
	AttackerReward   string
	DefenderReward   string
	RewardTags       []string
	Progress         float64
	Completed        bool
}

// Fissure is one void fissure mission. SteelPath marks the harder variant;
// only Steel Path fissures are notified, but the full set participates in
// new-fissure detection.
type Fissure struct {
	ID          string
	Node        string
	MissionType string
	Tier        string
	Expiry      time.Time
	SteelPath   bool
}

// EarthCycle is the Earth day/night state.
type EarthCycle struct {
	Phase     Phase
	StartedAt time.Time
	Expiry    time.Time
}

// Snapshot is one normalized poll result.
type Snapshot struct {
	FetchedAt time.Time
	Trader    *Trader
	Invasions []Invasion
	Fissures  []Fissure
	Earth     *EarthCycle
}

// FissureIDs returns the identity set of all fissures in the snapshot.
func (s *Snapshot) FissureIDs() map[string]bool {
	ids := make(map[string]bool, len(s.Fissures))
	for _, f := range s.Fissures {
		ids[f.ID] = true
	}
	return ids
}

// LiveKeys returns every dedup key an entity in this snapshot can occupy.
// Compaction must never delete these: a marker belonging to a still-live
// entity that gets dropped would be re-announced on the next cycle.
func (s *Snapshot) LiveKeys() []string {
	if s == nil {
		return nil
	}
	var keys []string
	if s.Trader != nil {
		keys = append(keys,
			TraderPreKey(s.Trader.Name, s.Trader.Arrival),
			TraderArrivedKey(s.Trader.Name, s.Trader.Arrival))
	}
	for _, inv := range s.Invasions {
		keys = append(keys, InvasionKey(inv.ID))
	}
	for _, f := range s.Fissures {
		keys = append(keys, FissureKey(f.ID))
	}
	return keys
}

// Clone returns a deep copy, safe to hand to another goroutine.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{FetchedAt: s.FetchedAt}
	if s.Trader != nil {
		t := *s.Trader
		c.Trader = &t
	}
	if s.Earth != nil {
		e := *s.Earth
		c.Earth = &e
	}
	c.Invasions = make([]Invasion, len(s.Invasions))
	copy(c.Invasions, s.Invasions)
	for i := range c.Invasions {
		tags := make([]string, len(s.Invasions[i].RewardTags))
		copy(tags, s.Invasions[i].RewardTags)
		c.Invasions[i].RewardTags = tags
	}
	c.Fissures = make([]Fissure, len(s.Fissures))
	copy(c.Fissures, s.Fissures)
	return c
}

// Dedup keys. Identifiers are stable across polls for the same real-world
// event; the key namespaces below match the persisted ledger layout.

// TraderKey is the composite key for one trader visit.
func TraderKey(name string, arrival time.Time) string {
	return fmt.Sprintf("trader:%s:%d", name, arrival.Unix())
}

// TraderPreKey marks the pre-announcement flag for one visit.
func TraderPreKey(name string, arrival time.Time) string {
	return TraderKey(name, arrival) + ":pre"
}

// TraderArrivedKey marks the arrival flag for one visit.
func TraderArrivedKey(name string, arrival time.Time) string {
	return TraderKey(name, arrival) + ":arrived"
}

// InvasionKey keys one invasion by its stable upstream identifier.
func InvasionKey(id string) string { return "invasion:" + id }

// FissureKey keys one fissure by its stable upstream identifier.
func FissureKey(id string) string { return "fissure:" + id }

// EarthCycleName is the last-value slot for the Earth cycle rule. Unlike the
// other domains, Earth keeps a single superseding value, not a growing set.
const EarthCycleName = "earthcycle"

// EarthCycleValue encodes one (phase, started-at) pair.
func EarthCycleValue(phase Phase, startedAt time.Time) string {
	return fmt.Sprintf("%s:%d", phase, startedAt.Unix())
}

// EarthCycleKey is the dedup key carried on an Earth cycle event.
func EarthCycleKey(phase Phase, startedAt time.Time) string {
	return "earthcycle:" + EarthCycleValue(phase, startedAt)
}

// Event kinds, carried so sinks can choose presentation (color, icon)
// without re-deriving the rule that fired.
const (
	KindTraderInbound = "trader_inbound"
	KindTraderArrived = "trader_arrived"
	KindInvasionRare  = "invasion_rare"
	KindFissureUpdate = "fissure_update"
	KindEarthCycle    = "earth_cycle"
)

// Field is one label/value pair attached to an event for rich sinks.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Event is one notification decision. Immutable once constructed by the rule
// engine; the ID is assigned at dispatch time.
type Event struct {
	ID       string    `json:"id"`
	Domain   Domain    `json:"domain"`
	Kind     string    `json:"kind"`
	DedupKey string    `json:"dedup_key"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	SourceID string    `json:"source_id"`
	Fields   []Field   `json:"fields,omitempty"`
	At       time.Time `json:"at"`
}
