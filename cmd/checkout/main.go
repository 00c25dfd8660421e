package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/boutiqueops/checkout/internal/cart"
	"github.com/boutiqueops/checkout/internal/inventory"
	"github.com/boutiqueops/checkout/internal/messaging"
	"github.com/boutiqueops/checkout/internal/order"
	"github.com/boutiqueops/checkout/internal/payment"
	"github.com/boutiqueops/checkout/internal/reservation"
	"github.com/boutiqueops/checkout/internal/sweeper"
	"github.com/boutiqueops/checkout/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "checkout", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("checkout", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

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

	var gateway *payment.GatewayClient
	if os.Getenv("GATEWAY_CLIENT_ID") != "" {
		gateway = payment.NewGatewayClient(payment.GatewayConfig{
			AuthURL:      os.Getenv("GATEWAY_AUTH_URL"),
			PaymentURL:   os.Getenv("GATEWAY_PAYMENT_URL"),
			ClientID:     os.Getenv("GATEWAY_CLIENT_ID"),
			ClientSecret: os.Getenv("GATEWAY_CLIENT_SECRET"),
			Audience:     os.Getenv("GATEWAY_AUDIENCE"),
			POSID:        os.Getenv("GATEWAY_POS_ID"),
			CallbackURL:  os.Getenv("GATEWAY_CALLBACK_URL"),
		}, &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
	} else {
		logger.Warn("GATEWAY_CLIENT_ID not set, payment intents disabled")
	}

	ledger := inventory.NewLedger(db)
	store := reservation.NewStore(db, ledger)
	carts := cart.NewPostgresProvider(db)
	orderRepo := order.NewRepository(db)

	cfg := order.Config{
		ReservationTTL:  envDuration(logger, "RESERVATION_TTL", order.DefaultReservationTTL),
		Currency:        os.Getenv("CURRENCY"),
		AutoCancelPrior: os.Getenv("AUTO_CANCEL_PRIOR_ORDERS") != "false",
	}

	var events order.EventPublisher
	if producer != nil {
		events = producer
	}

	var orderGateway order.PaymentGateway
	if gateway != nil {
		orderGateway = gateway
	}

	service := order.NewService(orderRepo, store, carts, orderGateway, events, metrics, logger, cfg)

	confirmer := payment.NewConfirmer(orderRepo, store, ledger, carts, events, metrics, logger)
	confirmer.AllowLateConfirmation = os.Getenv("ALLOW_LATE_CONFIRMATION") == "true"

	var checker payment.StatusChecker
	if gateway != nil && os.Getenv("VERIFY_WEBHOOK_STATUS") == "true" {
		checker = gateway
	}

	orderHandler := order.NewHandler(service, logger)
	paymentHandler := payment.NewHandler(confirmer, checker, logger)
	stockHandler := inventory.NewHandler(ledger, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(orderHandler.HandleCheckout))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(orderHandler.HandleCancel))
	mux.HandleFunc("POST /orders/{id}/confirm", telemetry.WithHTTPRoute(paymentHandler.HandleConfirm))
	mux.HandleFunc("POST /webhooks/payment", telemetry.WithHTTPRoute(paymentHandler.HandleWebhook))
	mux.HandleFunc("GET /stock", telemetry.WithHTTPRoute(stockHandler.HandleListStock))
	mux.HandleFunc("GET /stock/{variantId}", telemetry.WithHTTPRoute(stockHandler.HandleGetStock))
	mux.HandleFunc("POST /stock/{variantId}/credit", telemetry.WithHTTPRoute(stockHandler.HandleCredit))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "checkout",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()

	// Lazy expiry on confirm plus this in-process sweep keep stale orders
	// bounded even without the dedicated sweeper binary running.
	if os.Getenv("DISABLE_SWEEPER") != "true" {
		sw := sweeper.New(orderRepo, service, metrics, logger,
			envDuration(logger, "SWEEP_INTERVAL", sweeper.DefaultInterval))
		go func() {
			if err := sw.Run(sweepCtx); err != nil && sweepCtx.Err() == nil {
				logger.Error("sweeper stopped", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("starting checkout service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancelSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func envDuration(logger *slog.Logger, key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Error("invalid duration", "key", key, "value", raw, "error", err)
		os.Exit(1)
	}
	return d
}
