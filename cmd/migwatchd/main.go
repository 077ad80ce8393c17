package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"migwatch/internal/api"
	"migwatch/internal/checkpoint"
	"migwatch/internal/config"
	"migwatch/internal/engine"
	"migwatch/internal/ingest"
	"migwatch/internal/logging"
	"migwatch/internal/model"
	"migwatch/internal/roster"
	"migwatch/internal/storage"
	"migwatch/internal/writer"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "migwatch.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, config.ResolvePath(*configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "migwatchd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("migwatchd starting", "version", version, "config", configPath)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	provider := roster.NewSwappable(roster.Build(cfg))
	eng := engine.New(store, provider, logger)
	wr := writer.New(store, provider, logger)
	scheduler := checkpoint.NewScheduler(store, provider, logger,
		cfg.Checkpoint.Interval, cfg.Checkpoint.CollapseRadius,
		func() []string {
			current := manager.Get()
			ids := make([]string, 0, len(current.Maintenances))
			for _, m := range current.Maintenances {
				ids = append(ids, m.ID)
			}
			return ids
		})

	observations := make(chan model.Observation, cfg.Ingest.ChannelBuffer)
	wr.Start(ctx, observations)
	scheduler.Start(ctx)
	ingest.StartREST(ctx, manager, observations, logger)
	ingest.StartKafka(ctx, manager, observations, logger)
	api.Start(ctx, manager, eng, scheduler, logger, version)

	go manager.Watch(0, func(next *config.Config) {
		logger.Info("config reloaded", "path", configPath)
		provider.Swap(roster.Build(next))
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("migwatchd stopping")
	return nil
}
