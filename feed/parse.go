package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tennolabs/tennowatch/worldstate"
)

// Wire types mirror the upstream JSON. Only the fields the normalizer reads
// are declared; everything else is dropped at decode time.

type wireTrader struct {
	ID         string `json:"id"`
	Character  string `json:"character"`
	Location   string `json:"location"`
	Active     bool   `json:"active"`
	Activation string `json:"activation"`
	Expiry     string `json:"expiry"`
}

type wireRewardItem struct {
	UniqueName string `json:"uniqueName"`
	Type       string `json:"type"`
	Count      int    `json:"count"`
}

type wireReward struct {
	AsString     string           `json:"asString"`
	ItemString   string           `json:"itemString"`
	Items        []string         `json:"items"`
	CountedItems []wireRewardItem `json:"countedItems"`
}

type wireInvasionSide struct {
	Reward  wireReward `json:"reward"`
	Faction string     `json:"faction"`
}

type wireInvasion struct {
	ID                string           `json:"id"`
	Node              string           `json:"node"`
	Completed         bool             `json:"completed"`
	Completion        float64          `json:"completion"`
	AttackingFaction  string           `json:"attackingFaction"`
	DefendingFaction  string           `json:"defendingFaction"`
	Attacker          wireInvasionSide `json:"attacker"`
	Defender          wireInvasionSide `json:"defender"`
	AttackerRewardTop wireReward       `json:"attackerReward"`
	DefenderRewardTop wireReward       `json:"defenderReward"`
}

type wireFissure struct {
	ID          string `json:"id"`
	Node        string `json:"node"`
	MissionType string `json:"missionType"`
	Tier        string `json:"tier"`
	Expiry      string `json:"expiry"`
	Active      bool   `json:"active"`
	Expired     bool   `json:"expired"`
	IsHard      bool   `json:"isHard"`
}

type wireEarth struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	IsDay      bool   `json:"isDay"`
	Activation string `json:"activation"`
	Expiry     string `json:"expiry"`
}

// tierNames maps the upstream raw tier identifiers to relic era names. The
// parsed API usually sends the friendly name already; raw identifiers show
// up on some mirrors.
var tierNames = map[string]string{
	"VoidT1": "Lith",
	"VoidT2": "Meso",
	"VoidT3": "Neo",
	"VoidT4": "Axi",
	"VoidT5": "Requiem",
	"VoidT6": "Omnia",
}

func tierName(raw string) string {
	if name, ok := tierNames[raw]; ok {
		return name
	}
	return raw
}

// parseTime accepts the upstream RFC3339 timestamps. Empty is allowed and
// yields the zero time; a present but unparseable value is a malformed
// payload.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

// normalizeTraders picks the first non-departed trader visit. The endpoint
// historically returned a single object and now returns a list; both shapes
// are accepted.
func (c *Client) normalizeTraders(raw json.RawMessage, now time.Time) (*worldstate.Trader, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []wireTrader
	if err := json.Unmarshal(raw, &list); err != nil {
		var single wireTrader
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, fmt.Errorf("unrecognized payload shape: %w", err)
		}
		list = []wireTrader{single}
	}

	for _, w := range list {
		if w.ID == "" {
			return nil, fmt.Errorf("trader entry missing id")
		}
		arrival, err := parseTime(w.Activation)
		if err != nil {
			return nil, err
		}
		departure, err := parseTime(w.Expiry)
		if err != nil {
			return nil, err
		}
		// A visit that already ended is stale feed data, not a trader.
		if !departure.IsZero() && !departure.After(now) {
			continue
		}
		name := w.Character
		if name == "" {
			name = "Baro Ki'Teer"
		}
		return &worldstate.Trader{
			ID:        w.ID,
			Name:      name,
			Location:  w.Location,
			Active:    w.Active,
			Arrival:   arrival,
			Departure: departure,
		}, nil
	}
	return nil, nil
}

func (c *Client) normalizeInvasions(wires []wireInvasion) ([]worldstate.Invasion, error) {
	out := make([]worldstate.Invasion, 0, len(wires))
	for _, w := range wires {
		if w.Completed {
			continue
		}
		if w.ID == "" {
			return nil, fmt.Errorf("invasion entry missing id")
		}

		attacker := rewardText(w.Attacker.Reward, w.AttackerRewardTop)
		defender := rewardText(w.Defender.Reward, w.DefenderRewardTop)

		inv := worldstate.Invasion{
			ID:               w.ID,
			Node:             w.Node,
			AttackingFaction: w.AttackingFaction,
			DefendingFaction: w.DefendingFaction,
			AttackerReward:   attacker,
			DefenderReward:   defender,
			Progress:         w.Completion,
			Completed:        false,
		}
		inv.RewardTags = c.extractTags(w.Attacker.Reward, w.AttackerRewardTop,
			w.Defender.Reward, w.DefenderRewardTop)
		out = append(out, inv)
	}
	return out, nil
}

// rewardText renders one side's reward for display, preferring the upstream
// pre-rendered string.
func rewardText(rewards ...wireReward) string {
	for _, r := range rewards {
		if r.AsString != "" {
			return r.AsString
		}
		if r.ItemString != "" {
			return r.ItemString
		}
		var parts []string
		parts = append(parts, r.Items...)
		for _, ci := range r.CountedItems {
			if ci.Count > 1 {
				parts = append(parts, fmt.Sprintf("%d× %s", ci.Count, ci.Type))
			} else if ci.Type != "" {
				parts = append(parts, ci.Type)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	return ""
}

// extractTags scans reward item identifiers for the configured vocabulary.
// Matching is case-insensitive substring over both the display names and the
// internal uniqueName paths, with spaces stripped so "Orokin Catalyst"
// matches the OrokinCatalyst tag.
func (c *Client) extractTags(rewards ...wireReward) []string {
	var haystacks []string
	for _, r := range rewards {
		haystacks = append(haystacks, r.AsString, r.ItemString)
		haystacks = append(haystacks, r.Items...)
		for _, ci := range r.CountedItems {
			haystacks = append(haystacks, ci.Type, ci.UniqueName)
		}
	}

	var tags []string
	seen := make(map[string]bool)
	for _, tag := range c.config.RewardTags {
		needle := strings.ToLower(tag)
		for _, h := range haystacks {
			if h == "" {
				continue
			}
			h = strings.ToLower(strings.ReplaceAll(h, " ", ""))
			if strings.Contains(h, needle) && !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
				break
			}
		}
	}
	return tags
}

func (c *Client) normalizeFissures(wires []wireFissure, now time.Time) ([]worldstate.Fissure, error) {
	out := make([]worldstate.Fissure, 0, len(wires))
	for _, w := range wires {
		if w.Expired {
			continue
		}
		if w.ID == "" {
			return nil, fmt.Errorf("fissure entry missing id")
		}
		expiry, err := parseTime(w.Expiry)
		if err != nil {
			return nil, err
		}
		if !expiry.IsZero() && !expiry.After(now) {
			continue
		}
		if len(c.config.WatchedNodes) > 0 && !nodeWatched(w.Node, c.config.WatchedNodes) {
			continue
		}
		out = append(out, worldstate.Fissure{
			ID:          w.ID,
			Node:        w.Node,
			MissionType: w.MissionType,
			Tier:        tierName(w.Tier),
			Expiry:      expiry,
			SteelPath:   w.IsHard,
		})
	}
	return out, nil
}

func nodeWatched(node string, keywords []string) bool {
	n := strings.ToLower(node)
	for _, k := range keywords {
		if strings.Contains(n, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func normalizeEarth(w wireEarth) (*worldstate.EarthCycle, error) {
	if w.ID == "" && w.State == "" && w.Activation == "" {
		return nil, nil
	}
	startedAt, err := parseTime(w.Activation)
	if err != nil {
		return nil, err
	}
	expiry, err := parseTime(w.Expiry)
	if err != nil {
		return nil, err
	}

	phase := worldstate.PhaseNight
	if w.IsDay || strings.EqualFold(w.State, "day") {
		phase = worldstate.PhaseDay
	}
	return &worldstate.EarthCycle{Phase: phase, StartedAt: startedAt, Expiry: expiry}, nil
}
