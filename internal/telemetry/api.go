package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"drip-admin-console/internal/client"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// requestInstruments is the counter/error/duration triple shared by the
// outbound and inbound telemetry
type requestInstruments struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

func newRequestInstruments(meter metric.Meter, prefix, subject string) (*requestInstruments, error) {
	var (
		ri  requestInstruments
		err error
	)

	ri.requests, err = meter.Int64Counter(
		prefix+"_requests_total",
		metric.WithDescription("Total number of "+subject+" requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	ri.errors, err = meter.Int64Counter(
		prefix+"_errors_total",
		metric.WithDescription("Total number of failed "+subject+" requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	ri.duration, err = meter.Float64Histogram(
		prefix+"_request_duration_seconds",
		metric.WithDescription("Duration of "+subject+" requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &ri, nil
}

// GatewayTelemetry records every request the API client sends to the backend
type GatewayTelemetry struct {
	instruments *requestInstruments
}

// NewGatewayTelemetry creates the outbound instruments on meter
func NewGatewayTelemetry(meter metric.Meter) (*GatewayTelemetry, error) {
	instruments, err := newRequestInstruments(meter, "drip_gateway", "backend gateway")
	if err != nil {
		slog.Error("Failed to initialize gateway telemetry", "error", err)
		return nil, err
	}
	return &GatewayTelemetry{instruments: instruments}, nil
}

// ObserveRequest implements client.RequestObserver
func (t *GatewayTelemetry) ObserveRequest(ctx context.Context, m client.RequestMetrics) {
	attrs := []attribute.KeyValue{
		attribute.String("method", m.Method),
		attribute.String("entity", m.Entity),
		attribute.String("operation", m.Operation),
		attribute.Int("status_code", m.StatusCode),
	}

	t.instruments.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.instruments.duration.Record(ctx, m.Duration.Seconds(), metric.WithAttributes(attrs...))

	if m.Err != nil {
		errAttrs := append(attrs, attribute.String("error_type", categorizeGatewayError(m)))
		t.instruments.errors.Add(ctx, 1, metric.WithAttributes(errAttrs...))
	}
}

// ConsoleTelemetry records inbound requests to the console HTTP surface
type ConsoleTelemetry struct {
	instruments *requestInstruments
}

// ConsoleRequest describes one served console request
type ConsoleRequest struct {
	Method     string
	Route      string
	StatusCode int
	Duration   time.Duration
}

// NewConsoleTelemetry creates the inbound instruments on meter
func NewConsoleTelemetry(meter metric.Meter) (*ConsoleTelemetry, error) {
	instruments, err := newRequestInstruments(meter, "drip_console", "console API")
	if err != nil {
		slog.Error("Failed to initialize console telemetry", "error", err)
		return nil, err
	}
	return &ConsoleTelemetry{instruments: instruments}, nil
}

// Record registers one served request
func (t *ConsoleTelemetry) Record(ctx context.Context, r ConsoleRequest) {
	// route templates only, never raw paths
	attrs := []attribute.KeyValue{
		attribute.String("method", r.Method),
		attribute.String("route", r.Route),
		attribute.Int("status_code", r.StatusCode),
	}

	t.instruments.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.instruments.duration.Record(ctx, r.Duration.Seconds(), metric.WithAttributes(attrs...))
	if r.StatusCode >= 400 {
		t.instruments.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	slog.Debug("Console request",
		"method", r.Method,
		"route", r.Route,
		"status_code", r.StatusCode,
		"duration_ms", r.Duration.Milliseconds())
}

// categorizeGatewayError groups failures to keep cardinality low
func categorizeGatewayError(m client.RequestMetrics) string {
	if client.IsUnauthorized(m.Err) {
		return "unauthorized"
	}

	switch status := m.StatusCode; {
	case status == 0:
		msg := strings.ToLower(m.Err.Error())
		if strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout") {
			return "timeout"
		}
		if strings.Contains(msg, "canceled") {
			return "canceled"
		}
		return "transport"
	case status == 404:
		return "not_found"
	case status == 409:
		return "conflict"
	case status >= 400 && status < 500:
		return "bad_request"
	case status >= 500:
		return "server_error"
	default:
		return "other"
	}
}
