// Package feed adapts the upstream world-state API into normalized
// snapshots.
//
// The upstream (warframestat.us parsed API) exposes one JSON sub-endpoint
// per domain; the client fetches them in parallel and fails the whole
// snapshot if any endpoint fails or validates badly, so the poller treats
// partial data as a transient error rather than a world change.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tennolabs/tennowatch/worldstate"
)

// Config configures the feed client.
type Config struct {
	// BaseURL of the upstream API, without trailing slash.
	// Default: https://api.warframestat.us/pc
	BaseURL string
	// Timeout per snapshot fetch (covers all sub-endpoints). Default: 15s.
	Timeout time.Duration
	// UserAgent sent with requests.
	UserAgent string
	// Language for the Accept-Language header. Default: "en".
	Language string
	// WatchedNodes optionally restricts fissures to nodes whose name
	// contains one of these keywords (case-insensitive). Empty keeps all.
	WatchedNodes []string
	// RewardTags is the vocabulary scanned for in invasion reward item
	// names. Tags found here become the snapshot's RewardTags.
	RewardTags []string
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.warframestat.us/pc"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "tennowatch/1.0"
	}
	if c.Language == "" {
		c.Language = "en"
	}
}

// Client fetches and normalizes upstream world state.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the expiry-filtering clock. Used in tests.
func WithClock(fn func() time.Time) Option {
	return func(c *Client) { c.clock = fn }
}

// New creates a feed Client.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		clock:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Snapshot fetches all sub-endpoints in parallel and returns one normalized
// snapshot. Any endpoint failure or validation failure fails the snapshot.
func (c *Client) Snapshot(ctx context.Context) (*worldstate.Snapshot, error) {
	var (
		traders  json.RawMessage
		invasion []wireInvasion
		fissures []wireFissure
		earth    wireEarth
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.getJSON(gctx, "voidTraders", &traders) })
	g.Go(func() error { return c.getJSON(gctx, "invasions", &invasion) })
	g.Go(func() error { return c.getJSON(gctx, "fissures", &fissures) })
	g.Go(func() error { return c.getJSON(gctx, "earthCycle", &earth) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := c.clock()
	s := &worldstate.Snapshot{FetchedAt: now}

	trader, err := c.normalizeTraders(traders, now)
	if err != nil {
		return nil, fmt.Errorf("feed: traders: %w", err)
	}
	s.Trader = trader

	s.Invasions, err = c.normalizeInvasions(invasion)
	if err != nil {
		return nil, fmt.Errorf("feed: invasions: %w", err)
	}

	s.Fissures, err = c.normalizeFissures(fissures, now)
	if err != nil {
		return nil, fmt.Errorf("feed: fissures: %w", err)
	}

	s.Earth, err = normalizeEarth(earth)
	if err != nil {
		return nil, fmt.Errorf("feed: earth cycle: %w", err)
	}

	c.logger.Debug("snapshot fetched",
		"trader", s.Trader != nil,
		"invasions", len(s.Invasions),
		"fissures", len(s.Fissures))
	return s, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	url := c.config.BaseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("feed: new request %s: %w", path, err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept-Language", c.config.Language)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("feed: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("feed: get %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("feed: decode %s: %w", path, err)
	}
	return nil
}
