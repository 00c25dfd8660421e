package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/boutiqueops/checkout/internal/domain"
	"github.com/boutiqueops/checkout/internal/messaging"
	"github.com/boutiqueops/checkout/internal/notification"
)

// Notification worker: consumes order lifecycle events and sends customer
// emails. Email failures are logged and the event committed anyway; order
// state never depends on this process.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailServiceURL := os.Getenv("EMAIL_SERVICE_URL")
	if emailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	brokers := strings.Split(kafkaBrokers, ",")
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	handler := notification.NewHandler(emailServiceURL, httpClient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	topics := []string{
		domain.TopicOrderReserved,
		domain.TopicOrderFulfilled,
		domain.TopicOrderCancelled,
		domain.TopicOrderExpired,
	}

	logger.Info("starting notification worker", "brokers", brokers, "topics", topics)

	var wg sync.WaitGroup
	for _, topic := range topics {
		consumer := messaging.NewConsumer(brokers, topic, "notification-worker", logger)

		wg.Add(1)
		go func(topic string, consumer *messaging.Consumer) {
			defer wg.Done()
			defer func() { _ = consumer.Close() }()

			if err := consumer.Consume(ctx, handler.HandleEvent); err != nil {
				if ctx.Err() != nil {
					logger.Info("consumer stopped", "topic", topic)
					return
				}
				logger.Error("consumer error", "error", err, "topic", topic)
				cancel()
			}
		}(topic, consumer)
	}

	wg.Wait()
}
