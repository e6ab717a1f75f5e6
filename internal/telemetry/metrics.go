package telemetry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ExportInterval is how often metrics are pushed to the collector.
const ExportInterval = 10 * time.Second

// Endpoint returns the OTLP metrics endpoint from the environment, or "" when
// metrics export is not configured.
func Endpoint() string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// InitMetrics sets up a global OTLP metrics exporter (push) when an endpoint
// is configured. Without one the global no-op meter provider stays in place.
// The returned shutdown flushes pending measurements.
func InitMetrics(ctx context.Context, service, runID string) (shutdown func(context.Context) error) {
	noop := func(context.Context) error { return nil }

	endpoint := Endpoint()
	if endpoint == "" {
		slog.Debug("metrics export disabled")
		return noop
	}

	// Schemaless so the merge keeps the default resource's schema URL.
	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewSchemaless(
		semconv.ServiceName(service),
		attribute.String("run", runID),
	))
	if err != nil {
		slog.Warn("metrics resource merge failed", "error", err)
		res = sdkresource.Default()
	}

	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		slog.Warn("metrics exporter init failed", "error", err)
		return noop
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(ExportInterval))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("metrics initialized", "endpoint", endpoint)
	return mp.Shutdown
}
