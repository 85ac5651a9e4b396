package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tennolabs/tennowatch/worldstate"
)

// LogFactory returns a Factory for the structured-log sink. It takes no
// config and emits one Info record per event. Useful as a dry-run sink and
// as a permanent audit trail alongside real platforms.
func LogFactory() Factory {
	return func(name string, _ json.RawMessage, logger *slog.Logger) (worldstate.Sink, error) {
		return &logSink{name: name, logger: logger}, nil
	}
}

type logSink struct {
	name   string
	logger *slog.Logger
}

func (s *logSink) Name() string { return s.name }

func (s *logSink) Send(_ context.Context, ev worldstate.Event) error {
	s.logger.Info("event",
		"id", ev.ID,
		"domain", ev.Domain,
		"kind", ev.Kind,
		"dedup_key", ev.DedupKey,
		"title", ev.Title,
		"body", ev.Body)
	return nil
}
