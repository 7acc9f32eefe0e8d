package main

import (
	"context"
	"fmt"
	"os"

	"github.com/seantiz/argus/internal/api"
	"github.com/seantiz/argus/internal/cache"
	"github.com/seantiz/argus/internal/config"
	"github.com/seantiz/argus/internal/jobs"
	"github.com/seantiz/argus/internal/store"
	"github.com/seantiz/argus/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "argus: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	c := cache.New(cfg.RedisURL, logger)
	defer c.Close()

	registry := ws.NewRegistry(logger)
	reaper := jobs.NewReaper(st, registry, c, logger)
	sweeper := jobs.NewSweeper(st, logger)

	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.Add("reaper", jobs.ReaperSchedule, func(ctx context.Context) error {
		_, err := reaper.Run(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	if err := scheduler.Add("sweeper", jobs.SweeperSchedule, func(ctx context.Context) error {
		_, _, err := sweeper.Run(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	if err := scheduler.Add("rate-sweep", jobs.RateSweepSchedule, func(ctx context.Context) error {
		registry.SweepRateLimits()
		return nil
	}); err != nil {
		return fmt.Errorf("schedule rate sweep: %w", err)
	}
	scheduler.Start()

	srv := api.NewServer(cfg.ListenAddr, st, c, registry, logger)
	runErr := srv.Run()

	// Background timers stop before connections drain so a final sweep or
	// reap cannot race connection teardown.
	scheduler.Stop()
	registry.CloseAll()

	return runErr
}
