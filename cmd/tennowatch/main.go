// Command tennowatch monitors a game world-state feed and pushes change
// notifications to configured sinks, deduplicated across restarts by a
// SQLite ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/tennolabs/tennowatch/config"
	"github.com/tennolabs/tennowatch/dbopen"
	"github.com/tennolabs/tennowatch/feed"
	"github.com/tennolabs/tennowatch/httpapi"
	"github.com/tennolabs/tennowatch/notify"
	"github.com/tennolabs/tennowatch/worldstate"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	resetState := flag.Bool("reset-state", false, "clear all dedup memory before starting")
	flag.Parse()

	if err := run(*configPath, *once, *resetState); err != nil {
		fmt.Fprintln(os.Stderr, "tennowatch:", err)
		os.Exit(1)
	}
}

func run(configPath string, once, resetState bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := dbopen.Open(cfg.State.Path, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	rareRewards := cfg.Watch.RareRewards
	if rareRewards == nil {
		rareRewards = worldstate.DefaultRareRewards()
	}

	client := feed.New(feed.Config{
		BaseURL:      cfg.Feed.BaseURL,
		Timeout:      config.Duration(cfg.Feed.Timeout, 15*time.Second),
		UserAgent:    cfg.Feed.UserAgent,
		Language:     cfg.Feed.Language,
		WatchedNodes: cfg.Feed.WatchedNodes,
		RewardTags:   rareRewards,
	}, logger.With("component", "feed"))

	sinkConfigs, err := cfg.SinkConfigs()
	if err != nil {
		return err
	}
	sinks, err := notify.Build(sinkConfigs, logger.With("component", "notify"))
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		logger.Warn("no sinks configured, events will only be logged")
	}

	svc, err := worldstate.New(db, client.Snapshot, sinks, worldstate.Config{
		PollInterval:     config.Duration(cfg.Watch.PollInterval, time.Minute),
		BackoffMin:       config.Duration(cfg.Watch.BackoffMin, 5*time.Second),
		BackoffMax:       config.Duration(cfg.Watch.BackoffMax, 10*time.Minute),
		PreAnnounceLead:  config.Duration(cfg.Watch.PreAnnounceLead, 72*time.Hour),
		RareRewards:      rareRewards,
		EmitOnFirstCycle: cfg.Watch.EmitOnFirstCycle,
		DispatchTimeout:  config.Duration(cfg.Watch.DispatchTimeout, 10*time.Second),
		Retention:        config.Duration(cfg.State.Retention, 72*time.Hour),
		CompactInterval:  config.Duration(cfg.State.CompactInterval, 6*time.Hour),
		EventBuffer:      cfg.Watch.EventBuffer,
	}, logger)
	if err != nil {
		return err
	}

	if resetState {
		if err := svc.Reset(ctx); err != nil {
			return fmt.Errorf("reset state: %w", err)
		}
		logger.Info("dedup state cleared")
	}

	if once {
		return svc.RunOnce(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	if cfg.Server.ListenAddr != "" {
		api := httpapi.New(httpapi.Config{
			ListenAddr: cfg.Server.ListenAddr,
			StaleAfter: config.Duration(cfg.Server.StaleAfter, 5*time.Minute),
		}, svc, logger.With("component", "httpapi"))
		g.Go(func() error { return api.Run(gctx) })
	}

	logger.Info("tennowatch started",
		"state", cfg.State.Path,
		"sinks", len(sinks),
		"poll_interval", cfg.Watch.PollInterval)

	if err := ignoreCanceled(g.Wait()); err != nil {
		return err
	}
	logger.Info("tennowatch stopped")
	return nil
}

// ignoreCanceled filters the expected shutdown error. Cancellations surface
// wrapped through the errgroup, so sentinel comparison is not enough.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
