// Package notify implements the outbound notification sinks: Discord
// webhooks, generic signed webhooks, and a structured-log sink.
//
// Sinks are built from declarative configs through per-platform factories,
// so adding a platform means registering one factory.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tennolabs/tennowatch/worldstate"
)

// Config declares one sink instance.
type Config struct {
	// Name identifies the sink in logs. Required.
	Name string `json:"name"`
	// Platform selects the factory: "discord", "webhook" or "log".
	Platform string `json:"platform"`
	// Config is the platform-specific configuration blob.
	Config json.RawMessage `json:"config"`
}

// Factory builds one sink from its platform-specific config.
type Factory func(name string, config json.RawMessage, logger *slog.Logger) (worldstate.Sink, error)

// Factories returns the built-in platform factory registry.
func Factories() map[string]Factory {
	return map[string]Factory{
		"discord": DiscordFactory(),
		"webhook": WebhookFactory(),
		"log":     LogFactory(),
	}
}

// Build constructs all configured sinks. A single bad config fails the whole
// build: a half-configured notifier silently dropping one platform is worse
// than refusing to start.
func Build(configs []Config, logger *slog.Logger) ([]worldstate.Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	factories := Factories()

	sinks := make([]worldstate.Sink, 0, len(configs))
	for _, c := range configs {
		if c.Name == "" {
			return nil, fmt.Errorf("notify: sink with empty name")
		}
		factory, ok := factories[c.Platform]
		if !ok {
			return nil, &ErrNoPlatformFactory{Sink: c.Name, Platform: c.Platform}
		}
		sink, err := factory(c.Name, c.Config, logger.With("sink", c.Name))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}
