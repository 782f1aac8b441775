package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/localvoice/assetpipe"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal        metric.Int64Counter
	BuildFailuresTotal metric.Int64Counter
	BuildDuration      metric.Float64Histogram

	// Output metrics
	BundlesWrittenTotal    metric.Int64Counter
	BundleBytesTotal       metric.Int64Counter
	TemplatesRenderedTotal metric.Int64Counter
	FilesRemovedTotal      metric.Int64Counter
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

// Tracer returns the tracer used for build spans
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.total",
		metric.WithDescription("Total number of builds started"),
		metric.WithUnit("{build}"),
	)

	m.BuildFailuresTotal, _ = meter.Int64Counter(
		"assetpipe.builds.failures.total",
		metric.WithDescription("Total number of failed builds, by stage"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpipe.builds.duration",
		metric.WithDescription("Duration of complete builds"),
		metric.WithUnit("ms"),
	)

	m.BundlesWrittenTotal, _ = meter.Int64Counter(
		"assetpipe.bundles.written.total",
		metric.WithDescription("Total number of bundles written"),
		metric.WithUnit("{bundle}"),
	)

	m.BundleBytesTotal, _ = meter.Int64Counter(
		"assetpipe.bundles.bytes.total",
		metric.WithDescription("Total size of bundles written"),
		metric.WithUnit("By"),
	)

	m.TemplatesRenderedTotal, _ = meter.Int64Counter(
		"assetpipe.templates.rendered.total",
		metric.WithDescription("Total number of HTML templates rendered"),
		metric.WithUnit("{template}"),
	)

	m.FilesRemovedTotal, _ = meter.Int64Counter(
		"assetpipe.clean.removed.total",
		metric.WithDescription("Total number of stale files removed before a build"),
		metric.WithUnit("{file}"),
	)

	return m
}
