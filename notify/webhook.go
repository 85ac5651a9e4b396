package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tennolabs/tennowatch/worldstate"
)

// WebhookConfig is the per-sink JSON config for generic outbound webhooks.
type WebhookConfig struct {
	// URL receives the event as a JSON POST. Required.
	URL string `json:"url"`
	// Secret optionally signs the body: the request carries an
	// X-Signature-256 header with the hex HMAC-SHA256 of the payload.
	Secret string `json:"secret,omitempty"`
}

// WebhookFactory returns a Factory for generic webhook sinks. The event is
// POSTed verbatim as JSON so any receiver can consume the raw structure.
//
// Config example:
//
//	{"url": "https://ops.example.com/hooks/worldstate", "secret": "hmac_key"}
func WebhookFactory() Factory {
	return func(name string, config json.RawMessage, logger *slog.Logger) (worldstate.Sink, error) {
		var cfg WebhookConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("webhook: parse config: %w", err)
		}
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook: url is required")
		}
		return &webhookSink{
			name:   name,
			config: cfg,
			client: &http.Client{Timeout: 15 * time.Second},
		}, nil
	}
}

type webhookSink struct {
	name   string
	config WebhookConfig
	client *http.Client
}

func (s *webhookSink) Name() string { return s.name }

func (s *webhookSink) Send(ctx context.Context, ev worldstate.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return &ErrSendFailed{Sink: s.name, Platform: "webhook",
			Cause: fmt.Errorf("marshal event: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return &ErrSendFailed{Sink: s.name, Platform: "webhook",
			Cause: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	if s.config.Secret != "" {
		mac := hmac.New(sha256.New, []byte(s.config.Secret))
		mac.Write(body)
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &ErrSendFailed{Sink: s.name, Platform: "webhook",
			Cause: fmt.Errorf("POST: %w", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return &ErrSendFailed{Sink: s.name, Platform: "webhook",
			Cause: fmt.Errorf("receiver returned %d", resp.StatusCode)}
	}
	return nil
}
