package worldstate

import (
	"time"

	"github.com/tennolabs/tennowatch/worldstate/internal/rules"
)

// Config configures the monitoring service.
type Config struct {
	// PollInterval between the end of one cycle and the start of the next.
	// Default: 1 minute.
	PollInterval time.Duration
	// BackoffMin is the first retry delay after a fetch failure.
	// Default: 5 seconds.
	BackoffMin time.Duration
	// BackoffMax caps the exponential retry delay. Default: 10 minutes.
	BackoffMax time.Duration

	// PreAnnounceLead is how far ahead of a trader arrival the
	// pre-announcement fires. Default: 72h.
	PreAnnounceLead time.Duration
	// RareRewards overrides the invasion reward tag set. Default: the
	// built-in high-value set.
	RareRewards []string
	// EmitOnFirstCycle emits the initial Steel Path fissure population on
	// the first cycle after startup instead of seeding it silently.
	EmitOnFirstCycle bool

	// DispatchTimeout bounds each sink delivery. Default: 10 seconds.
	DispatchTimeout time.Duration

	// Retention is how long pushed markers are kept before compaction.
	// Default: 72h.
	Retention time.Duration
	// CompactInterval is how often compaction runs. Default: 6h.
	CompactInterval time.Duration

	// EventBuffer is how many recent events the status API retains.
	// Default: 100.
	EventBuffer int
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 5 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 10 * time.Minute
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 10 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 72 * time.Hour
	}
	if c.CompactInterval <= 0 {
		c.CompactInterval = 6 * time.Hour
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 100
	}
}

func (c *Config) rules() rules.Config {
	return rules.Config{
		PreAnnounceLead:  c.PreAnnounceLead,
		RareRewards:      c.RareRewards,
		EmitOnFirstCycle: c.EmitOnFirstCycle,
	}
}
