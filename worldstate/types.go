package worldstate

import (
	"github.com/tennolabs/tennowatch/worldstate/internal/rules"
	"github.com/tennolabs/tennowatch/worldstate/internal/snap"
)

// DefaultRareRewards returns the built-in high-value invasion reward tag set.
func DefaultRareRewards() []string { return rules.DefaultRareRewards() }

// Re-exported domain types. The canonical definitions live in the internal
// snap package so the rule engine, ledger and poller can share them without
// importing this package.

type (
	Snapshot   = snap.Snapshot
	Trader     = snap.Trader
	Invasion   = snap.Invasion
	Fissure    = snap.Fissure
	EarthCycle = snap.EarthCycle
	Event      = snap.Event
	Field      = snap.Field
	Domain     = snap.Domain
	Phase      = snap.Phase
)

const (
	DomainTrader   = snap.DomainTrader
	DomainInvasion = snap.DomainInvasion
	DomainFissure  = snap.DomainFissure
	DomainEarth    = snap.DomainEarth

	PhaseDay   = snap.PhaseDay
	PhaseNight = snap.PhaseNight

	KindTraderInbound = snap.KindTraderInbound
	KindTraderArrived = snap.KindTraderArrived
	KindInvasionRare  = snap.KindInvasionRare
	KindFissureUpdate = snap.KindFissureUpdate
	KindEarthCycle    = snap.KindEarthCycle
)
