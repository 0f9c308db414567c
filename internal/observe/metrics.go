// Package observe holds the observability plumbing for Sonoscope:
// OpenTelemetry metric instruments for the pipeline, tracing helpers,
// trace-aware logging and the HTTP middleware and /metrics handler.
//
// Metrics go through the OpenTelemetry API. [InitProvider] bridges them to
// a Prometheus registry that [MetricsHandler] serves. Tests should build
// their own [Metrics] with [NewMetrics] and a manual reader instead of
// using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/sonoscope"

// Metrics holds the instruments for the pipeline. All fields are safe for
// concurrent use.
type Metrics struct {
	// --- Pipeline counters ---

	FramesProcessed    metric.Int64Counter
	FramesDropped      metric.Int64Counter
	DetectionsFiltered metric.Int64Counter
	DetectionErrors    metric.Int64Counter
	MappingFallbacks   metric.Int64Counter
	Regenerations      metric.Int64Counter
	CooldownSuppressed metric.Int64Counter
	Coalesced          metric.Int64Counter

	// GenerationFailures carries attribute kind: "error" or "timeout".
	GenerationFailures metric.Int64Counter
	SynthesisFailures  metric.Int64Counter

	// Transitions carries attributes mode and phase ("started" or
	// "completed").
	Transitions   metric.Int64Counter
	HandlerErrors metric.Int64Counter

	// ToolCalls counts control tool invocations by tool and status.
	ToolCalls metric.Int64Counter

	// --- Latency ---

	GenerationDuration  metric.Float64Histogram
	HTTPRequestDuration metric.Float64Histogram

	// --- Gauges ---

	// PipelineRunning is 1 while the processor runs.
	PipelineRunning metric.Int64UpDownCounter
}

// generationBuckets are histogram boundaries in seconds for generation
// latency.
var generationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.FramesProcessed, "sonoscope.frames.processed", "Frames that went through detection."},
		{&met.FramesDropped, "sonoscope.frames.dropped", "Frames evicted from the capture queue."},
		{&met.DetectionsFiltered, "sonoscope.detections.filtered", "Detections below the confidence threshold."},
		{&met.DetectionErrors, "sonoscope.detections.errors", "Frames the detector failed on."},
		{&met.MappingFallbacks, "sonoscope.mapping.fallbacks", "Mapper failures answered with neutral parameters."},
		{&met.Regenerations, "sonoscope.regenerations", "Generation requests issued."},
		{&met.CooldownSuppressed, "sonoscope.cooldown.suppressed", "Class changes ignored inside the cooldown."},
		{&met.Coalesced, "sonoscope.regenerations.coalesced", "Class changes matching the in-flight request."},
		{&met.GenerationFailures, "sonoscope.generation.failures", "Failed or timed-out generations by kind."},
		{&met.SynthesisFailures, "sonoscope.synthesis.failures", "Output handoffs that failed after a retry."},
		{&met.Transitions, "sonoscope.transitions", "Transitions by mode and phase."},
		{&met.HandlerErrors, "sonoscope.handler.errors", "Event handlers that failed or panicked."},
		{&met.ToolCalls, "sonoscope.tool.calls", "Control tool invocations by tool and status."},
	}
	for _, c := range counters {
		var err error
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	var err error
	if met.GenerationDuration, err = m.Float64Histogram("sonoscope.generation.duration",
		metric.WithDescription("Latency of successful music generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(generationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("sonoscope.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.PipelineRunning, err = m.Int64UpDownCounter("sonoscope.pipeline.running",
		metric.WithDescription("1 while the processor is running."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide Metrics on the global meter
// provider. It panics if the instruments cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordGenerationFailure counts a failed generation. kind is "error" or
// "timeout".
func (m *Metrics) RecordGenerationFailure(ctx context.Context, kind string) {
	m.GenerationFailures.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordTransition counts a transition phase.
func (m *Metrics) RecordTransition(ctx context.Context, mode, phase string) {
	m.Transitions.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode), Attr("phase", phase)))
}

// RecordToolCall counts a control tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(Attr("tool", tool), Attr("status", status)))
}

// RecordGeneration records a successful generation's latency.
func (m *Metrics) RecordGeneration(ctx context.Context, d time.Duration, style string) {
	m.GenerationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("style", style)))
}
