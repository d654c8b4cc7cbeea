package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	traceBatchTimeout = 5 * time.Second
	metricInterval    = 10 * time.Second
)

type shutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTelemetry installs global trace and meter providers exporting over
// OTLP gRPC. Endpoints and headers come from the standard OTEL_EXPORTER_OTLP_*
// variables, so a build run on a laptop with nothing configured only logs a
// warning.
//
// The returned function flushes both providers.
func InitTelemetry(ctx context.Context, serviceName, version string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithOSType(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traces, err := newTraceProvider(ctx, res)
	if err != nil {
		log.Warn().Err(err).Msg("Traces disabled")
		traces = noopShutdown
	}

	metrics, err := newMeterProvider(ctx, res)
	if err != nil {
		log.Warn().Err(err).Msg("Metrics disabled")
		metrics = noopShutdown
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Debug().Str("service", serviceName).Str("version", version).Msg("Telemetry initialized")

	return func(ctx context.Context) error {
		var errs []error
		if err := traces(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
		}
		if err := metrics(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
		}
		return errors.Join(errs...)
	}, nil
}

func newTraceProvider(ctx context.Context, res *resource.Resource) (shutdownFunc, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// builds are short lived, sample everything
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(traceBatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (shutdownFunc, error) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
