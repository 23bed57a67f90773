// Package telemetry emits fire-and-forget events about strategy outcomes for
// observability pipelines. Recorders never return errors and never panic into
// the caller.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-correlator/internal/metrics"
)

const (
	// EngineCorrelation tags events from alert correlation.
	EngineCorrelation = "correlation"
	// EngineInference tags events from topology inference.
	EngineInference = "inference"
)

// Event describes one strategy outcome.
type Event struct {
	Engine   string
	Strategy string
	TenantID string
	Outcome  string
	Count    int
	Score    float64
	Error    string
	Duration time.Duration
}

// Recorder consumes telemetry events.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Nop discards events.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Event) {}

// LogRecorder writes events to a slog.Logger. Failures log at warn, the rest at debug.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder constructs a LogRecorder.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, event Event) {
	level := slog.LevelDebug
	if event.Outcome != metrics.OutcomeSuccess {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("engine", event.Engine),
		slog.String("strategy", event.Strategy),
		slog.String("outcome", event.Outcome),
		slog.Duration("duration", event.Duration),
	}
	if event.TenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", event.TenantID))
	}
	if event.Engine == EngineInference {
		attrs = append(attrs, slog.Int("edges", event.Count))
	} else {
		attrs = append(attrs, slog.Float64("score", event.Score))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	r.logger.LogAttrs(ctx, level, "strategy outcome", attrs...)
}

// MetricsRecorder forwards events to the Prometheus collectors.
type MetricsRecorder struct{}

// Record implements Recorder.
func (MetricsRecorder) Record(_ context.Context, event Event) {
	metrics.ObserveStrategy(event.Engine, event.Strategy, event.Outcome, event.Duration)
	if event.Engine == EngineInference && event.Outcome == metrics.OutcomeSuccess {
		metrics.AddInferredEdges(event.Strategy, event.Count)
	}
}

type multi []Recorder

// Multi fans an event out to every recorder, isolating panics per recorder.
func Multi(recorders ...Recorder) Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Record(ctx context.Context, event Event) {
	for _, r := range m {
		safeRecord(ctx, r, event)
	}
}

func safeRecord(ctx context.Context, r Recorder, event Event) {
	defer func() {
		_ = recover()
	}()
	r.Record(ctx, event)
}

// OrNop returns r, or a Nop recorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return Multi(r)
}
