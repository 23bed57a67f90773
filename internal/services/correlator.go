package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-correlator/internal/correlation"
	"github.com/miradorstack/mirador-correlator/internal/metrics"
	"github.com/miradorstack/mirador-correlator/internal/models"
	"github.com/miradorstack/mirador-correlator/internal/utils"
)

// ErrInvalidArgument marks requests rejected before any work is done.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotConfigured marks calls into a service whose collaborators are missing.
var ErrNotConfigured = errors.New("not configured")

// IncidentStore provides the candidate incidents and persists decisions.
type IncidentStore interface {
	OpenIncidents(ctx context.Context, tenantID string) ([]models.Incident, error)
	RecordDecision(ctx context.Context, decision models.Decision) error
}

// CorrelatorService decides, per alert, whether it joins an open incident.
type CorrelatorService struct {
	logger       *slog.Logger
	orchestrator *correlation.Orchestrator
	incidents    IncidentStore
	latencies    *utils.LatencyTracker
	now          func() time.Time
}

// NewCorrelatorService constructs the correlation facade.
func NewCorrelatorService(logger *slog.Logger, orchestrator *correlation.Orchestrator, incidents IncidentStore) *CorrelatorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorrelatorService{
		logger:       logger,
		orchestrator: orchestrator,
		incidents:    incidents,
		latencies:    utils.NewLatencyTracker(1024),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Correlate scores the alert against the tenant's open incidents and records
// the resulting decision. An unmatched decision carries a fresh incident id
// for the caller to open.
func (s *CorrelatorService) Correlate(ctx context.Context, tenantID string, alert models.Alert) (models.Decision, error) {
	if s == nil || s.orchestrator == nil || s.incidents == nil {
		return models.Decision{}, fmt.Errorf("correlator: %w", ErrNotConfigured)
	}
	tenantID = strings.TrimSpace(tenantID)
	alert.Service = strings.TrimSpace(alert.Service)
	if tenantID == "" {
		return models.Decision{}, fmt.Errorf("tenant_id is required: %w", ErrInvalidArgument)
	}

	start := time.Now()
	if alert.ReceivedAt.IsZero() {
		alert.ReceivedAt = s.now()
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	incidents, err := s.incidents.OpenIncidents(ctx, tenantID)
	if err != nil {
		s.logger.Warn("open incidents unavailable, treating alert as unmatched",
			slog.String("tenant_id", tenantID),
			slog.String("alert_id", alert.ID),
			slog.String("op", utils.FailedOp(err)),
			slog.Any("error", err),
		)
		incidents = nil
	}

	selection, err := s.orchestrator.Select(ctx, tenantID, alert, incidents)
	if err != nil {
		metrics.ObserveDecision(time.Since(start), metrics.OutcomeError)
		return models.Decision{}, fmt.Errorf("select incident: %w", err)
	}

	decision := models.Decision{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Alert:      alert,
		Matched:    selection.Matched,
		Threshold:  s.orchestrator.Threshold(),
		Candidates: len(incidents),
		DecidedAt:  s.now(),
	}
	if selection.Matched {
		decision.IncidentID = selection.Best.IncidentID
		decision.Score = selection.Best.Combined
		decision.Scores = selection.Best.Scores
	} else {
		decision.IncidentID = uuid.NewString()
		if best, ok := highest(selection.Candidates); ok {
			decision.Score = best.Combined
			decision.Scores = best.Scores
		}
	}

	if err := s.incidents.RecordDecision(ctx, decision); err != nil {
		metrics.ObserveDecision(time.Since(start), metrics.OutcomeError)
		return models.Decision{}, fmt.Errorf("record decision: %w", err)
	}

	duration := time.Since(start)
	metrics.ObserveDecision(duration, decision.Outcome())
	if total := s.latencies.Observe(duration); total%20 == 0 {
		s.logger.Info("correlation latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Uint64("decisions", total))
	}

	s.logger.Debug("alert correlated",
		slog.String("tenant_id", tenantID),
		slog.String("alert_id", alert.ID),
		slog.String("service", alert.Service),
		slog.String("outcome", decision.Outcome()),
		slog.String("incident_id", decision.IncidentID),
		slog.Float64("score", decision.Score),
	)
	return decision, nil
}

// LatencyP95 returns the current p95 decision latency.
func (s *CorrelatorService) LatencyP95() time.Duration {
	if s == nil || s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

// highest returns the best-scoring candidate below threshold, for the record.
func highest(candidates []models.CandidateScore) (models.CandidateScore, bool) {
	if len(candidates) == 0 {
		return models.CandidateScore{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Combined > best.Combined {
			best = c
		}
	}
	return best, true
}
