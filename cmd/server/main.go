package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/carepos/api/internal/checkout"
	"github.com/carepos/api/internal/config"
	"github.com/carepos/api/internal/database"
	"github.com/carepos/api/internal/events"
	"github.com/carepos/api/internal/metrics"
	"github.com/carepos/api/internal/router"
	"github.com/carepos/api/internal/service"
	"github.com/carepos/api/internal/simclock"
	"github.com/carepos/api/internal/txapi"
	"github.com/carepos/api/internal/ws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	queries := database.New(pool)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := ws.NewHub()
	go hub.Run(ctx)

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.CheckoutEventsTopic)
	defer publisher.Close()
	if !publisher.Enabled() {
		log.Println("WARNING: KAFKA_BROKERS not set, checkout events are not published")
	}

	client := txapi.NewClient(cfg.TxAPIBaseURL, cfg.TxAPITimeout,
		txapi.WithToken(cfg.TxAPIToken),
		txapi.WithCallObserver(m.ObserveCall),
	)
	orchestrator := checkout.NewOrchestrator(client, checkout.Options{
		FailFastOnBatchError: cfg.FailFastBatchErrors,
	})
	checkouts := service.NewCheckoutService(queries, orchestrator, service.CheckoutDeps{
		Hub:       hub,
		Publisher: publisher,
		Metrics:   m,
		GSTRate:   cfg.GSTRate,
	})

	r := router.New(cfg, router.Deps{
		Queries:    queries,
		Hub:        hub,
		Checkouts:  checkouts,
		Simulation: simclock.New(queries, cfg.SimulationParamsID, cfg.SimulationCacheTTL),
		Metrics:    m,
		Gatherer:   reg,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	// In-flight checkouts finish before the listener closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
}
