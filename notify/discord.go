package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tennolabs/tennowatch/worldstate"
)

// DiscordConfig is the per-sink JSON config for Discord webhook delivery.
type DiscordConfig struct {
	// WebhookURL is the Discord webhook endpoint. Required.
	WebhookURL string `json:"webhook_url"`
	// Username overrides the webhook's display name.
	Username string `json:"username,omitempty"`
	// AvatarURL overrides the webhook's avatar.
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DiscordFactory returns a Factory for Discord webhook sinks. Events are
// rendered as a single embed, colored by event kind.
//
// Config example:
//
//	{"webhook_url": "https://discord.com/api/webhooks/...", "username": "tennowatch"}
func DiscordFactory() Factory {
	return func(name string, config json.RawMessage, logger *slog.Logger) (worldstate.Sink, error) {
		var cfg DiscordConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("discord: parse config: %w", err)
		}
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("discord: webhook_url is required")
		}
		return &discordSink{
			name:   name,
			config: cfg,
			client: &http.Client{Timeout: 15 * time.Second},
			logger: logger,
		}, nil
	}
}

// embedColors maps event kinds to embed accent colors.
var embedColors = map[string]int{
	worldstate.KindTraderInbound: 0xFFA500,
	worldstate.KindTraderArrived: 0xFFD700,
	worldstate.KindInvasionRare:  0xE74C3C,
	worldstate.KindFissureUpdate: 0x8E44AD,
	worldstate.KindEarthCycle:    0x3A86FF,
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp"`
}

type discordPayload struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []discordEmbed `json:"embeds"`
}

type discordSink struct {
	name   string
	config DiscordConfig
	client *http.Client
	logger *slog.Logger
}

func (s *discordSink) Name() string { return s.name }

func (s *discordSink) Send(ctx context.Context, ev worldstate.Event) error {
	body, err := json.Marshal(s.payload(ev))
	if err != nil {
		return &ErrSendFailed{Sink: s.name, Platform: "discord",
			Cause: fmt.Errorf("marshal payload: %w", err)}
	}

	if err := s.post(ctx, body, true); err != nil {
		return &ErrSendFailed{Sink: s.name, Platform: "discord", Cause: err}
	}
	return nil
}

func (s *discordSink) payload(ev worldstate.Event) discordPayload {
	fields := make([]discordEmbedField, len(ev.Fields))
	for i, f := range ev.Fields {
		fields[i] = discordEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline}
	}
	return discordPayload{
		Username:  s.config.Username,
		AvatarURL: s.config.AvatarURL,
		Embeds: []discordEmbed{{
			Title:       ev.Title,
			Description: ev.Body,
			Color:       embedColors[ev.Kind],
			Fields:      fields,
			Footer:      &discordEmbedFooter{Text: "tennowatch"},
			Timestamp:   ev.At.UTC().Format(time.RFC3339),
		}},
	}
}

// post delivers the payload, honoring one rate-limit retry. Discord answers
// 429 with a retry_after duration; a second 429 is surfaced as an error.
func (s *discordSink) post(ctx context.Context, body []byte, retry bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests && retry:
		wait := retryAfter(resp)
		s.logger.Warn("discord rate limited", "retry_after", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		return s.post(ctx, body, false)
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
}

// retryAfter reads the rate-limit wait from the response. Discord sends both
// a Retry-After header (seconds) and a JSON body {"retry_after": seconds};
// the header wins, the body is the fallback, one second the floor.
func retryAfter(resp *http.Response) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	return time.Second
}
