package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/bundlekit"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal        metric.Int64Counter
	BuildErrorsTotal   metric.Int64Counter
	BuildDuration      metric.Float64Histogram
	AssetsEmittedTotal metric.Int64Counter

	// Dev server metrics
	DevServerRequestsTotal metric.Int64Counter
	ConfigReloadsTotal     metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for build spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"bundlekit.builds.total",
		metric.WithDescription("Total number of builds and rebuilds"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"bundlekit.builds.errors.total",
		metric.WithDescription("Total number of builds that failed"),
		metric.WithUnit("{error}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"bundlekit.builds.duration",
		metric.WithDescription("Duration of builds including post-build plugins"),
		metric.WithUnit("ms"),
	)

	m.AssetsEmittedTotal, _ = meter.Int64Counter(
		"bundlekit.assets.emitted.total",
		metric.WithDescription("Total number of files emitted by builds"),
		metric.WithUnit("{file}"),
	)

	m.DevServerRequestsTotal, _ = meter.Int64Counter(
		"bundlekit.devserver.requests.total",
		metric.WithDescription("Total number of requests handled by the dev server"),
		metric.WithUnit("{request}"),
	)

	m.ConfigReloadsTotal, _ = meter.Int64Counter(
		"bundlekit.devserver.config_reloads.total",
		metric.WithDescription("Total number of configuration reloads in the dev server"),
		metric.WithUnit("{reload}"),
	)

	return m
}
