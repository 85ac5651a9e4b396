// Package config loads the service configuration: built-in defaults, then an
// optional YAML file, then TENNOWATCH_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tennolabs/tennowatch/notify"
)

// Config is the top-level configuration for tennowatch.
type Config struct {
	Log    LogConfig    `koanf:"log"`
	State  StateConfig  `koanf:"state"`
	Feed   FeedConfig   `koanf:"feed"`
	Watch  WatchConfig  `koanf:"watch"`
	Server ServerConfig `koanf:"server"`
	Sinks  []SinkConfig `koanf:"sinks"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"` // "debug", "info", "warn", "error"
}

// StateConfig holds the dedup ledger settings.
type StateConfig struct {
	Path            string `koanf:"path"`
	Retention       string `koanf:"retention"`
	CompactInterval string `koanf:"compact_interval"`
}

// FeedConfig holds the upstream feed settings.
type FeedConfig struct {
	BaseURL      string   `koanf:"base_url"`
	Timeout      string   `koanf:"timeout"`
	Language     string   `koanf:"language"`
	UserAgent    string   `koanf:"user_agent"`
	WatchedNodes []string `koanf:"watched_nodes"`
}

// WatchConfig holds the change-detection settings.
type WatchConfig struct {
	PollInterval     string   `koanf:"poll_interval"`
	BackoffMin       string   `koanf:"backoff_min"`
	BackoffMax       string   `koanf:"backoff_max"`
	PreAnnounceLead  string   `koanf:"pre_announce_lead"`
	RareRewards      []string `koanf:"rare_rewards"`
	EmitOnFirstCycle bool     `koanf:"emit_on_first_cycle"`
	DispatchTimeout  string   `koanf:"dispatch_timeout"`
	EventBuffer      int      `koanf:"event_buffer"`
}

// ServerConfig holds the status API settings.
type ServerConfig struct {
	ListenAddr string `koanf:"listen_addr"`
	StaleAfter string `koanf:"stale_after"`
}

// SinkConfig declares one notification sink. Platform-specific settings are
// flat koanf keys forwarded to the sink factory as JSON.
type SinkConfig struct {
	Name     string            `koanf:"name"`
	Platform string            `koanf:"platform"`
	Options  map[string]string `koanf:"options"`
}

// Load reads configuration from defaults, then the YAML file at configPath
// (if non-empty), then TENNOWATCH_* environment variables.
// TENNOWATCH_WATCH__POLL_INTERVAL=30s overrides watch.poll_interval.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"log.level":               "info",
		"state.path":              "tennowatch.db",
		"state.retention":         "72h",
		"state.compact_interval":  "6h",
		"feed.base_url":           "https://api.warframestat.us/pc",
		"feed.timeout":            "15s",
		"feed.language":           "en",
		"feed.user_agent":         "tennowatch/1.0",
		"watch.poll_interval":     "1m",
		"watch.backoff_min":       "5s",
		"watch.backoff_max":       "10m",
		"watch.pre_announce_lead": "72h",
		"watch.dispatch_timeout":  "10s",
		"watch.event_buffer":      100,
		"server.listen_addr":      "",
		"server.stale_after":      "5m",
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config: set default %s: %w", key, err)
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file: %w", err)
		}
	}

	if err := k.Load(env.Provider("TENNOWATCH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TENNOWATCH_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks durations and sink declarations so misconfiguration fails
// at startup, not mid-run.
func (c *Config) Validate() error {
	durations := map[string]string{
		"state.retention":         c.State.Retention,
		"state.compact_interval":  c.State.CompactInterval,
		"feed.timeout":            c.Feed.Timeout,
		"watch.poll_interval":     c.Watch.PollInterval,
		"watch.backoff_min":       c.Watch.BackoffMin,
		"watch.backoff_max":       c.Watch.BackoffMax,
		"watch.pre_announce_lead": c.Watch.PreAnnounceLead,
		"watch.dispatch_timeout":  c.Watch.DispatchTimeout,
		"server.stale_after":      c.Server.StaleAfter,
	}
	for key, raw := range durations {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}

	if c.State.Path == "" {
		return fmt.Errorf("config: state.path is required")
	}
	for i, s := range c.Sinks {
		if s.Name == "" {
			return fmt.Errorf("config: sinks[%d]: name is required", i)
		}
		if s.Platform == "" {
			return fmt.Errorf("config: sink %s: platform is required", s.Name)
		}
	}
	return nil
}

// Duration parses a validated duration string, with fallback for empty.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// SinkConfigs converts the declared sinks into notify configs, rendering the
// flat options map as the platform JSON blob.
func (c *Config) SinkConfigs() ([]notify.Config, error) {
	out := make([]notify.Config, 0, len(c.Sinks))
	for _, s := range c.Sinks {
		blob, err := marshalOptions(s.Options)
		if err != nil {
			return nil, fmt.Errorf("config: sink %s: %w", s.Name, err)
		}
		out = append(out, notify.Config{
			Name:     s.Name,
			Platform: s.Platform,
			Config:   blob,
		})
	}
	return out, nil
}

func marshalOptions(opts map[string]string) (json.RawMessage, error) {
	if opts == nil {
		opts = map[string]string{}
	}
	blob, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	return json.RawMessage(blob), nil
}
