package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider initializes the Prometheus exporter and MeterProvider.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the order-lifecycle counters every component reports into.
type Metrics struct {
	OrdersReserved  metric.Int64Counter
	OrdersFulfilled metric.Int64Counter
	OrdersCancelled metric.Int64Counter
	OrdersExpired   metric.Int64Counter
	StockRejections metric.Int64Counter
	SweepFailures   metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("checkout")

	m := &Metrics{}
	var err error

	if m.OrdersReserved, err = meter.Int64Counter("orders_reserved_total",
		metric.WithDescription("Orders created in reserved state")); err != nil {
		return nil, err
	}
	if m.OrdersFulfilled, err = meter.Int64Counter("orders_fulfilled_total",
		metric.WithDescription("Orders confirmed and stock debited")); err != nil {
		return nil, err
	}
	if m.OrdersCancelled, err = meter.Int64Counter("orders_cancelled_total",
		metric.WithDescription("Orders cancelled by user or business")); err != nil {
		return nil, err
	}
	if m.OrdersExpired, err = meter.Int64Counter("orders_expired_total",
		metric.WithDescription("Orders expired by reservation TTL")); err != nil {
		return nil, err
	}
	if m.StockRejections, err = meter.Int64Counter("checkout_stock_rejections_total",
		metric.WithDescription("Checkouts rejected for insufficient stock")); err != nil {
		return nil, err
	}
	if m.SweepFailures, err = meter.Int64Counter("sweeper_failures_total",
		metric.WithDescription("Per-order failures during expiry sweeps")); err != nil {
		return nil, err
	}

	return m, nil
}
