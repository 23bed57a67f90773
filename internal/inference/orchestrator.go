package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-correlator/internal/metrics"
	"github.com/miradorstack/mirador-correlator/internal/models"
	"github.com/miradorstack/mirador-correlator/internal/telemetry"
)

const (
	// DefaultStrategyTimeout bounds a single strategy run.
	DefaultStrategyTimeout = 10 * time.Second
	// DefaultRunTimeout caps a whole inference run.
	DefaultRunTimeout = 60 * time.Second
)

// Options tunes the orchestrator.
type Options struct {
	StrategyTimeout time.Duration
	RunTimeout      time.Duration
}

// RunResult is the outcome of one inference run.
type RunResult struct {
	// Proposed counts raw proposals before deduplication.
	Proposed   int
	Edges      []models.DependencyEdge
	Strategies []models.StrategyRun
	Failures   int
}

// Orchestrator runs every inference strategy over the same snapshot and
// deduplicates their proposals. A failing strategy is reported, never fatal.
type Orchestrator struct {
	logger          *slog.Logger
	recorder        telemetry.Recorder
	tracer          trace.Tracer
	strategies      []Strategy
	strategyTimeout time.Duration
	runTimeout      time.Duration
}

// NewOrchestrator constructs an orchestrator; nil strategies are skipped.
func NewOrchestrator(logger *slog.Logger, recorder telemetry.Recorder, opts Options, strategies ...Strategy) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StrategyTimeout <= 0 {
		opts.StrategyTimeout = DefaultStrategyTimeout
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	registry := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			registry = append(registry, s)
		}
	}
	return &Orchestrator{
		logger:          logger,
		recorder:        telemetry.OrNop(recorder),
		tracer:          otel.Tracer("github.com/miradorstack/mirador-correlator/internal/inference"),
		strategies:      registry,
		strategyTimeout: opts.StrategyTimeout,
		runTimeout:      opts.RunTimeout,
	}
}

// Strategies returns the registered strategy names in run order.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, len(o.strategies))
	for i, s := range o.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run executes all strategies concurrently. It fails only when ctx itself is
// cancelled by the caller.
func (o *Orchestrator) Run(ctx context.Context, tenantID string, nodes []models.ServiceNode, enrichment models.Enrichment) (RunResult, error) {
	ctx, span := o.tracer.Start(ctx, "inference.Run", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("nodes", len(nodes)),
		attribute.Int("strategies", len(o.strategies)),
	))
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	runs := make([]models.StrategyRun, len(o.strategies))
	proposals := make([][]models.DependencyEdge, len(o.strategies))
	var g errgroup.Group
	for i, s := range o.strategies {
		i, s := i, s
		g.Go(func() error {
			runs[i], proposals[i] = o.runStrategy(runCtx, tenantID, s, nodes, enrichment)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}

	result := RunResult{Strategies: runs}
	var all []models.DependencyEdge
	for i, run := range runs {
		if !run.Success {
			result.Failures++
			continue
		}
		all = append(all, proposals[i]...)
	}
	result.Proposed = len(all)
	result.Edges = Deduplicate(all)

	span.SetAttributes(
		attribute.Int("proposed", result.Proposed),
		attribute.Int("edges", len(result.Edges)),
		attribute.Int("failures", result.Failures),
	)
	o.logger.Info("inference run complete",
		slog.String("tenant_id", tenantID),
		slog.Int("nodes", len(nodes)),
		slog.Int("proposed", result.Proposed),
		slog.Int("edges", len(result.Edges)),
		slog.Int("failures", result.Failures),
	)
	return result, nil
}

type inferOutcome struct {
	edges []models.DependencyEdge
	err   error
}

func (o *Orchestrator) runStrategy(ctx context.Context, tenantID string, s Strategy, nodes []models.ServiceNode, enrichment models.Enrichment) (models.StrategyRun, []models.DependencyEdge) {
	name := s.Name()
	run := models.StrategyRun{Name: name}

	sctx, cancel := context.WithTimeout(ctx, o.strategyTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan inferOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- inferOutcome{err: fmt.Errorf("strategy %s panicked: %v", name, r)}
			}
		}()
		edges, err := s.Infer(sctx, tenantID, nodes, enrichment)
		done <- inferOutcome{edges: edges, err: err}
	}()

	var edges []models.DependencyEdge
	outcome := metrics.OutcomeSuccess
	select {
	case res := <-done:
		if res.err != nil {
			outcome = metrics.OutcomeError
			run.Error = res.err.Error()
		} else {
			edges = sanitize(res.edges, name)
			run.Success = true
			run.Edges = len(edges)
		}
	case <-sctx.Done():
		outcome = metrics.OutcomeTimeout
		run.Error = sctx.Err().Error()
	}
	elapsed := time.Since(start)
	run.DurationMs = elapsed.Milliseconds()

	if !run.Success {
		o.logger.Warn("inference strategy failed",
			slog.String("tenant_id", tenantID),
			slog.String("strategy", name),
			slog.String("outcome", outcome),
			slog.String("error", run.Error),
		)
	}
	o.recorder.Record(ctx, telemetry.Event{
		Engine:   telemetry.EngineInference,
		Strategy: name,
		TenantID: tenantID,
		Outcome:  outcome,
		Count:    run.Edges,
		Error:    run.Error,
		Duration: elapsed,
	})
	return run, edges
}

// sanitize drops malformed proposals, clamps confidence and makes sure the
// strategy's own label is present.
func sanitize(edges []models.DependencyEdge, source string) []models.DependencyEdge {
	out := make([]models.DependencyEdge, 0, len(edges))
	for _, edge := range edges {
		if edge.FromService == "" || edge.ToService == "" || edge.FromService == edge.ToService {
			continue
		}
		if math.IsNaN(edge.Confidence) {
			continue
		}
		if edge.Confidence < 0 {
			edge.Confidence = 0
		} else if edge.Confidence > 1 {
			edge.Confidence = 1
		}
		if len(edge.DiscoveredFrom) == 0 {
			edge.DiscoveredFrom = []string{source}
		}
		out = append(out, edge)
	}
	return out
}
