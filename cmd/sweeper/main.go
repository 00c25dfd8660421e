package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/boutiqueops/checkout/internal/cart"
	"github.com/boutiqueops/checkout/internal/inventory"
	"github.com/boutiqueops/checkout/internal/messaging"
	"github.com/boutiqueops/checkout/internal/order"
	"github.com/boutiqueops/checkout/internal/reservation"
	"github.com/boutiqueops/checkout/internal/sweeper"
	"github.com/boutiqueops/checkout/internal/telemetry"
)

// Standalone expiry sweeper. The checkout service runs an in-process sweep by
// default; this binary exists for deployments that want the sweep isolated
// from request traffic.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(postgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var producer *messaging.Producer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer = messaging.NewProducer(strings.Split(kafkaBrokers, ","))
		defer func() { _ = producer.Close() }()
	}

	interval := sweeper.DefaultInterval
	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		interval, err = time.ParseDuration(raw)
		if err != nil {
			logger.Error("invalid SWEEP_INTERVAL", "value", raw, "error", err)
			os.Exit(1)
		}
	}

	ledger := inventory.NewLedger(db)
	store := reservation.NewStore(db, ledger)
	repo := order.NewRepository(db)

	var events order.EventPublisher
	if producer != nil {
		events = producer
	}

	// The sweeper only ever drives the expire transition; gateway and cart
	// collaborators are not needed for that path.
	service := order.NewService(repo, store, cart.NewPostgresProvider(db), nil, events, nil, logger, order.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting expiry sweeper", "interval", interval)

	sw := sweeper.New(repo, service, nil, logger, interval)
	if err := sw.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("sweeper error", "error", err)
		os.Exit(1)
	}
}
