package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
)

const (
	ExporterScraper = "scraper"
	ExporterGRPC    = "grpc"
	ExporterNone    = "none"
)

// Telemetry owns the meter provider and, for the scraper exporter, the
// handler that serves /metrics
type Telemetry struct {
	Provider *metric.MeterProvider
	meter    api.Meter
	registry *prometheus.Registry
	exporter string
}

// InitMetrics sets up the meter provider for the given exporter:
// "scraper" exposes a prometheus endpoint, "grpc" pushes over OTLP (target
// taken from OTEL_EXPORTER_OTLP_METRICS_ENDPOINT), anything else is a no-op.
func InitMetrics(ctx context.Context, meterName, exporter string) (*Telemetry, error) {
	t := &Telemetry{exporter: exporter}

	switch exporter {
	case ExporterScraper:
		slog.Info("Starting metrics with scraper exporter")
		if err := t.initScrapeMetrics(meterName); err != nil {
			return nil, err
		}
	case ExporterGRPC:
		slog.Info("Starting metrics with grpc exporter")
		if err := t.initGRPCMetrics(ctx, meterName); err != nil {
			return nil, err
		}
	default:
		slog.Info("Metrics export disabled")
		t.exporter = ExporterNone
		t.meter = noop.NewMeterProvider().Meter(meterName)
	}

	return t, nil
}

// Meter returns the meter instruments are created from
func (t *Telemetry) Meter() api.Meter {
	return t.meter
}

// Handler serves the prometheus scrape page; nil unless the exporter is "scraper"
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Close flushes and shuts the provider down
func (t *Telemetry) Close(ctx context.Context) error {
	if t.Provider == nil {
		return nil
	}
	if err := t.Provider.ForceFlush(ctx); err != nil {
		slog.Warn("Failed to flush metrics", "error", err)
	}
	if err := t.Provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down meter provider: %w", err)
	}
	return nil
}

// https://opentelemetry.io/docs/languages/go/exporters/#otlp-metrics-over-grpc
func (t *Telemetry) initGRPCMetrics(ctx context.Context, meterName string) error {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		slog.Error("Creating GRPC exporter", "error", err)
		return fmt.Errorf("failed to create grpc exporter: %w", err)
	}

	t.Provider = metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(exporter)))
	otel.SetMeterProvider(t.Provider)
	t.meter = t.Provider.Meter(meterName)
	return nil
}

// The prometheus exporter is both an OpenTelemetry reader and a collector.
// It registers on a private registry so repeated initialisation in tests
// does not collide on the global one.
func (t *Telemetry) initScrapeMetrics(meterName string) error {
	t.registry = prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(t.registry))
	if err != nil {
		slog.Error("Creating scrape exporter", "error", err)
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	t.Provider = metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(t.Provider)
	t.meter = t.Provider.Meter(meterName)
	return nil
}
