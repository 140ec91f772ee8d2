package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gridshare/platform/internal/eventstore"
	"github.com/gridshare/platform/internal/infra"
	"github.com/gridshare/platform/internal/outbox"
	"github.com/gridshare/platform/internal/region"
	"github.com/gridshare/platform/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox relay failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-relay connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	// The relay decodes the whole log, so it needs the region's variants
	// but none of its handlers.
	reg := eventstore.NewRegistry()
	if err := region.NewCommon(cfg.RegionID, region.CommonDeps{}).RegisterEvents(reg); err != nil {
		return fmt.Errorf("register region events: %w", err)
	}
	store := eventstore.NewPostgresStore(pool, repository.NewPermissionEventRepository(), repository.NewPublicationRepository(), reg)

	relay := outbox.NewRelay(store, producer, outbox.RelayConfig{
		Topic:     cfg.KafkaTopicPrefix + ".status-messages",
		Interval:  cfg.RelayPollInterval,
		BatchSize: cfg.RelayBatchSize,
	}, logger, infra.NewMetrics(prometheus.NewRegistry()))

	relay.Start(ctx)
	<-ctx.Done()
	logger.Info("outbox-relay shutting down")
	return nil
}
