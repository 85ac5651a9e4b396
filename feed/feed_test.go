package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestServer serves fixed JSON per endpoint path. Missing paths get 404.
func newTestServer(t *testing.T, fixtures map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := fixtures[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func emptyFixtures() map[string]string {
	return map[string]string{
		"/voidTraders": `[]`,
		"/invasions":   `[]`,
		"/fissures":    `[]`,
		"/earthCycle":  `{"id":"earth1","state":"day","isDay":true,"activation":"2026-08-25T06:00:00Z","expiry":"2026-08-25T10:00:00Z"}`,
	}
}

func testClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = srv.URL
	fixed := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)
	return New(cfg, nil, WithClock(func() time.Time { return fixed }))
}

func TestSnapshotParsesAllDomains(t *testing.T) {
	// WHAT: A full fixture set yields a snapshot with every domain populated
	// and timestamps parsed.
	fx := emptyFixtures()
	fx["/voidTraders"] = `[{"id":"t1","character":"Baro Ki'Teer","location":"Strata Relay (Earth)",
		"active":false,"activation":"2026-08-26T13:00:00Z","expiry":"2026-08-28T13:00:00Z"}]`
	fx["/invasions"] = `[{"id":"inv1","node":"Cassini (Saturn)","completed":false,"completion":42.5,
		"attackingFaction":"Grineer","defendingFaction":"Corpus",
		"attacker":{"reward":{"asString":"Orokin Reactor","countedItems":[{"type":"Orokin Reactor","count":1,"uniqueName":"/Lotus/Types/Items/OrokinReactor"}]}},
		"defender":{"reward":{"asString":"Fieldron x3","countedItems":[{"type":"Fieldron","count":3,"uniqueName":"/Lotus/Types/Items/Fieldron"}]}}}]`
	fx["/fissures"] = `[{"id":"f1","node":"Mot (Void)","missionType":"Survival","tier":"Axi",
		"expiry":"2026-08-25T09:30:00Z","active":true,"expired":false,"isHard":true}]`

	srv := newTestServer(t, fx)
	c := testClient(t, srv, Config{RewardTags: []string{"OrokinReactor"}})

	s, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if s.Trader == nil || s.Trader.Name != "Baro Ki'Teer" {
		t.Fatalf("trader: %+v", s.Trader)
	}
	wantArrival := time.Date(2026, 8, 26, 13, 0, 0, 0, time.UTC)
	if !s.Trader.Arrival.Equal(wantArrival) {
		t.Errorf("trader arrival: got %v, want %v", s.Trader.Arrival, wantArrival)
	}

	if len(s.Invasions) != 1 {
		t.Fatalf("invasions: got %d, want 1", len(s.Invasions))
	}
	inv := s.Invasions[0]
	if inv.AttackerReward != "Orokin Reactor" || inv.DefenderReward != "Fieldron x3" {
		t.Errorf("rewards: %q / %q", inv.AttackerReward, inv.DefenderReward)
	}
	if len(inv.RewardTags) != 1 || inv.RewardTags[0] != "OrokinReactor" {
		t.Errorf("reward tags: %v", inv.RewardTags)
	}

	if len(s.Fissures) != 1 || !s.Fissures[0].SteelPath || s.Fissures[0].Tier != "Axi" {
		t.Fatalf("fissures: %+v", s.Fissures)
	}

	if s.Earth == nil || s.Earth.Phase != "day" {
		t.Fatalf("earth: %+v", s.Earth)
	}
}

func TestSnapshotTraderSingleObjectShape(t *testing.T) {
	// WHAT: The legacy single-object voidTraders payload is accepted.
	fx := emptyFixtures()
	fx["/voidTraders"] = `{"id":"t1","character":"Baro Ki'Teer","location":"Kronia Relay (Saturn)",
		"active":true,"activation":"2026-08-24T13:00:00Z","expiry":"2026-08-26T13:00:00Z"}`

	srv := newTestServer(t, fx)
	c := testClient(t, srv, Config{})
	s, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if s.Trader == nil || !s.Trader.Active {
		t.Fatalf("trader: %+v", s.Trader)
	}
}

func TestSnapshotDropsStaleEntries(t *testing.T) {
	// WHAT: Departed traders, completed invasions and expired fissures never
	// reach the snapshot.
	// WHY: Rules must only ever see live world state; staleness filtering is
	// the adapter's job.
	fx := emptyFixtures()
	fx["/voidTraders"] = `[{"id":"t0","character":"Baro Ki'Teer","location":"",
		"active":false,"activation":"2026-08-20T13:00:00Z","expiry":"2026-08-22T13:00:00Z"}]`
	fx["/invasions"] = `[{"id":"done1","node":"X","completed":true,
		"attacker":{"reward":{"asString":"Forma"}},"defender":{"reward":{}}}]`
	fx["/fissures"] = `[
		{"id":"old1","node":"A","missionType":"Capture","tier":"Lith","expiry":"2026-08-25T07:00:00Z","expired":false,"isHard":true},
		{"id":"flagged","node":"B","missionType":"Exterminate","tier":"Meso","expiry":"2026-08-25T09:00:00Z","expired":true,"isHard":true}]`

	srv := newTestServer(t, fx)
	c := testClient(t, srv, Config{})
	s, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if s.Trader != nil {
		t.Errorf("departed trader should be dropped, got %+v", s.Trader)
	}
	if len(s.Invasions) != 0 {
		t.Errorf("completed invasion should be dropped, got %+v", s.Invasions)
	}
	if len(s.Fissures) != 0 {
		t.Errorf("expired fissures should be dropped, got %+v", s.Fissures)
	}
}

func TestSnapshotRawTierNames(t *testing.T) {
	// WHAT: Raw VoidTn tier identifiers normalize to relic era names.
	fx := emptyFixtures()
	fx["/fissures"] = `[
		{"id":"f1","node":"A","missionType":"Capture","tier":"VoidT1","expiry":"2026-08-25T12:00:00Z","isHard":true},
		{"id":"f2","node":"B","missionType":"Defense","tier":"VoidT5","expiry":"2026-08-25T12:00:00Z","isHard":true}]`

	srv := newTestServer(t, fx)
	c := testClient(t, srv, Config{})
	s, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if s.Fissures[0].Tier != "Lith" || s.Fissures[1].Tier != "Requiem" {
		t.Errorf("tiers: %q %q", s.Fissures[0].Tier, s.Fissures[1].Tier)
	}
}

func TestSnapshotWatchedNodesFilter(t *testing.T) {
	// WHAT: With WatchedNodes set, only fissures on matching nodes survive.
	fx := emptyFixtures()
	fx["/fissures"] = `[
		{"id":"f1","node":"Mot (Void)","missionType":"Survival","tier":"Axi","expiry":"2026-08-25T12:00:00Z","isHard":true},
		{"id":"f2","node":"Hydron (Sedna)","missionType":"Defense","tier":"Neo","expiry":"2026-08-25T12:00:00Z","isHard":true}]`

	srv := newTestServer(t, fx)
	c := testClient(t, srv, Config{WatchedNodes: []string{"void"}})
	s, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(s.Fissures) != 1 || s.Fissures[0].ID != "f1" {
		t.Fatalf("fissures: %+v", s.Fissures)
	}
}

func TestSnapshotEndpointFailureFailsWhole(t *testing.T) {
	// WHAT: One failing sub-endpoint fails the entire snapshot.
	// WHY: Partial data would look like mass expiry to the diff rules.
	fx := emptyFixtures()
	delete(fx, "/invasions")

	srv := newTestServer(t, fx)
	c := testClient(t, srv, Config{})
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("snapshot should fail when an endpoint 404s")
	}
}

func TestSnapshotMalformedPayloadIsError(t *testing.T) {
	// WHAT: Entries missing required identifiers reject the snapshot.
	fx := emptyFixtures()
	fx["/fissures"] = `[{"node":"A","missionType":"Capture","tier":"Lith","expiry":"2026-08-25T12:00:00Z","isHard":true}]`

	srv := newTestServer(t, fx)
	c := testClient(t, srv, Config{})
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("snapshot should fail on fissure without id")
	}
}

func TestSnapshotBadTimestampIsError(t *testing.T) {
	// WHAT: An unparseable timestamp is a malformed payload, not a zero time.
	fx := emptyFixtures()
	fx["/earthCycle"] = `{"id":"e1","state":"day","isDay":true,"activation":"not-a-time","expiry":""}`

	srv := newTestServer(t, fx)
	c := testClient(t, srv, Config{})
	if _, err := c.Snapshot(context.Background()); err == nil {
		t.Fatal("snapshot should fail on bad timestamp")
	}
}
