package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ShubhamPawar-3333/NexusCart/internal/config"
	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/application"
	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/domain"
	invhttp "github.com/ShubhamPawar-3333/NexusCart/internal/inventory/infrastructure/http"
	invkafka "github.com/ShubhamPawar-3333/NexusCart/internal/inventory/infrastructure/kafka"
	invpg "github.com/ShubhamPawar-3333/NexusCart/internal/inventory/infrastructure/postgres"
	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/infrastructure/rediscache"
	"github.com/ShubhamPawar-3333/NexusCart/pkg/idempotency"
	"github.com/ShubhamPawar-3333/NexusCart/pkg/logging"
	"github.com/ShubhamPawar-3333/NexusCart/pkg/outbox"
	"github.com/ShubhamPawar-3333/NexusCart/pkg/shutdown"
	"github.com/ShubhamPawar-3333/NexusCart/pkg/tracing"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.ServiceName)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(cfg.ServiceName, cfg.JaegerURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := invpg.NewStore(log, pool)
	if err := store.Migrate(ctx); err != nil {
		log.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	idem := idempotency.NewStore(rdb, 10*time.Minute)
	cache := rediscache.New(log, rdb, cfg.CacheTTL)

	engine := application.NewEngine(log, store, application.WithTTL(cfg.ReservationTTL))
	coordinator := application.NewCoordinator(log, engine, store)
	service := application.NewService(log, store, cache)

	// Outbox relay carries staged outcome events to Kafka.
	writer := invkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()
	dispatch := outbox.NewDispatcher(log, writer)
	relay := outbox.NewRelay(log, invpg.NewOutboxStore(log, pool), dispatch, cfg.ServiceName+"-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped", "err", err)
		}
	}()

	consumers := []*invkafka.Consumer{
		invkafka.NewConsumer(log, cfg.KafkaBrokers, domain.TopicOrderCreated, cfg.ConsumerGroup, coordinator.HandleOrderCreated, idem, writer),
		invkafka.NewConsumer(log, cfg.KafkaBrokers, domain.TopicOrderCancelled, cfg.ConsumerGroup, coordinator.HandleOrderCancelled, idem, writer),
		invkafka.NewConsumer(log, cfg.KafkaBrokers, domain.TopicPaymentCompleted, cfg.ConsumerGroup, coordinator.HandlePaymentCompleted, idem, writer),
	}
	for _, c := range consumers {
		go func(c *invkafka.Consumer) {
			if err := c.Run(ctx); err != nil {
				log.Error("consumer stopped", "err", err)
				cancel()
			}
		}(c)
	}

	sweeper := application.NewSweeper(log, engine, cfg.SweepInterval, cfg.SweepBatchSize)
	go func() {
		if err := sweeper.Run(ctx); err != nil {
			log.Error("sweeper stopped", "err", err)
		}
	}()

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: invhttp.NewHandler(log, service).Routes(),
	}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("inventory-service shutdown")
}
