package correlation

import (
	"context"
	"fmt"
	"log/slog"
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
	// DefaultThreshold is the inclusive acceptance threshold on the combined score.
	DefaultThreshold = 0.6
	// DefaultStrategyTimeout bounds a single strategy call.
	DefaultStrategyTimeout = 2 * time.Second
	// DefaultMaxParallel bounds how many incidents are scored at once.
	DefaultMaxParallel = 8
)

// Weighted pairs a strategy with its weight in the combined score.
type Weighted struct {
	Strategy Strategy
	Weight   float64
}

// Options tunes the orchestrator.
type Options struct {
	Threshold       float64
	StrategyTimeout time.Duration
	MaxParallel     int
}

// Orchestrator combines strategy scores into one decision per alert.
//
// The combined score of a candidate is the weighted mean
//
//	combined = Σ wᵢ·sᵢ / Σ wᵢ
//
// over every registered strategy with a positive weight. A strategy that
// errors, panics or times out contributes 0. The best candidate whose combined
// score is at least the threshold wins; ties go to the most recently updated
// incident, then to the smallest incident id.
type Orchestrator struct {
	logger          *slog.Logger
	recorder        telemetry.Recorder
	tracer          trace.Tracer
	strategies      []Weighted
	threshold       float64
	strategyTimeout time.Duration
	maxParallel     int
}

// Selection is the outcome of scoring every candidate for one alert.
type Selection struct {
	Matched    bool
	Best       models.CandidateScore
	Candidates []models.CandidateScore
}

// NewOrchestrator constructs an orchestrator over an explicit strategy registry.
func NewOrchestrator(logger *slog.Logger, recorder telemetry.Recorder, opts Options, strategies ...Weighted) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.StrategyTimeout <= 0 {
		opts.StrategyTimeout = DefaultStrategyTimeout
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}

	registry := make([]Weighted, 0, len(strategies))
	for _, w := range strategies {
		if w.Strategy == nil || w.Weight <= 0 {
			continue
		}
		registry = append(registry, w)
	}

	return &Orchestrator{
		logger:          logger,
		recorder:        telemetry.OrNop(recorder),
		tracer:          otel.Tracer("github.com/miradorstack/mirador-correlator/internal/correlation"),
		strategies:      registry,
		threshold:       opts.Threshold,
		strategyTimeout: opts.StrategyTimeout,
		maxParallel:     opts.MaxParallel,
	}
}

// Threshold returns the acceptance threshold.
func (o *Orchestrator) Threshold() float64 { return o.threshold }

// Select scores the alert against every incident and picks the best qualifying one.
// It only fails when ctx is done before scoring completes.
func (o *Orchestrator) Select(ctx context.Context, tenantID string, alert models.Alert, incidents []models.Incident) (Selection, error) {
	ctx, span := o.tracer.Start(ctx, "correlation.Select", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("alert.service", alert.Service),
		attribute.Int("candidates", len(incidents)),
	))
	defer span.End()

	candidates := make([]models.CandidateScore, len(incidents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxParallel)
	for i := range incidents {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates[i] = o.Evaluate(gctx, tenantID, alert, incidents[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Selection{}, err
	}
	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}

	selection := Selection{Candidates: candidates}
	bestIdx := -1
	for i := range candidates {
		if candidates[i].Combined < o.threshold {
			continue
		}
		if bestIdx < 0 || better(candidates[i], incidents[i], candidates[bestIdx], incidents[bestIdx]) {
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		selection.Matched = true
		selection.Best = candidates[bestIdx]
		span.SetAttributes(attribute.String("incident_id", selection.Best.IncidentID), attribute.Float64("score", selection.Best.Combined))
	}
	return selection, nil
}

// Evaluate scores one (alert, incident) pair with every strategy.
func (o *Orchestrator) Evaluate(ctx context.Context, tenantID string, alert models.Alert, incident models.Incident) models.CandidateScore {
	result := models.CandidateScore{
		IncidentID: incident.ID,
		Scores:     make([]models.StrategyScore, 0, len(o.strategies)),
	}

	var weighted, total float64
	for _, w := range o.strategies {
		score := o.runStrategy(ctx, tenantID, w, alert, incident)
		result.Scores = append(result.Scores, score)
		weighted += score.Weight * score.Value
		total += score.Weight
	}
	if total > 0 {
		result.Combined = clamp01(weighted / total)
	}
	return result
}

type strategyOutcome struct {
	value float64
	err   error
}

func (o *Orchestrator) runStrategy(ctx context.Context, tenantID string, w Weighted, alert models.Alert, incident models.Incident) models.StrategyScore {
	name := w.Strategy.Name()
	score := models.StrategyScore{Strategy: name, Weight: w.Weight}

	sctx, cancel := context.WithTimeout(ctx, o.strategyTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan strategyOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- strategyOutcome{err: fmt.Errorf("strategy %s panicked: %v", name, r)}
			}
		}()
		value, err := w.Strategy.Score(sctx, tenantID, alert, incident)
		done <- strategyOutcome{value: value, err: err}
	}()

	outcome := metrics.OutcomeSuccess
	select {
	case res := <-done:
		if res.err != nil {
			outcome = metrics.OutcomeError
			score.Error = res.err.Error()
		} else {
			score.Value = clamp01(res.value)
		}
	case <-sctx.Done():
		outcome = metrics.OutcomeTimeout
		score.Error = sctx.Err().Error()
	}

	if score.Error != "" {
		o.logger.Debug("correlation strategy failed",
			slog.String("strategy", name),
			slog.String("incident_id", incident.ID),
			slog.String("error", score.Error),
		)
	}
	o.recorder.Record(ctx, telemetry.Event{
		Engine:   telemetry.EngineCorrelation,
		Strategy: name,
		TenantID: tenantID,
		Outcome:  outcome,
		Score:    score.Value,
		Error:    score.Error,
		Duration: time.Since(start),
	})
	return score
}

func better(a models.CandidateScore, ai models.Incident, b models.CandidateScore, bi models.Incident) bool {
	if a.Combined != b.Combined {
		return a.Combined > b.Combined
	}
	if !ai.UpdatedAt.Equal(bi.UpdatedAt) {
		return ai.UpdatedAt.After(bi.UpdatedAt)
	}
	return ai.ID < bi.ID
}
