package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miradorstack/mirador-correlator/internal/correlation"
	"github.com/miradorstack/mirador-correlator/internal/graph"
	"github.com/miradorstack/mirador-correlator/internal/models"
	"github.com/miradorstack/mirador-correlator/internal/repo"
)

type failingIncidentStore struct {
	openErr   error
	recordErr error
	recorded  []models.Decision
}

func (f *failingIncidentStore) OpenIncidents(ctx context.Context, tenantID string) ([]models.Incident, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return []models.Incident{{ID: "inc-1", Services: []string{"payment-api"}, Title: "Payment errors", UpdatedAt: time.Now().Add(-time.Minute)}}, nil
}

func (f *failingIncidentStore) RecordDecision(ctx context.Context, decision models.Decision) error {
	f.recorded = append(f.recorded, decision)
	return f.recordErr
}

func newTestOrchestrator(t *testing.T, store correlation.GraphStore) *correlation.Orchestrator {
	t.Helper()
	return correlation.NewOrchestrator(nil, nil, correlation.Options{},
		correlation.Weighted{Strategy: correlation.NewTimeWindow(5 * time.Minute), Weight: 0.3},
		correlation.Weighted{Strategy: correlation.NewTopology(store, 3, nil), Weight: 0.3},
		correlation.Weighted{Strategy: correlation.NewSimilarity(nil), Weight: 0.4},
	)
}

func TestCorrelateJoinsRelatedIncident(t *testing.T) {
	ctx := context.Background()
	graphStore := graph.NewMemoryStore()
	if _, err := graphStore.BatchUpsertDependencies(ctx, "acme", []models.DependencyEdge{
		{FromService: "payment-worker", ToService: "payment-api", DependencyType: models.DependencyCalls, Confidence: 0.9},
	}); err != nil {
		t.Fatalf("seed graph: %v", err)
	}

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	incidents := repo.NewMemoryIncidentStore()
	incidents.Open("acme", models.Incident{ID: "inc-1", Services: []string{"payment-api"}, Title: "Payment errors", UpdatedAt: now.Add(-time.Minute)})

	svc := NewCorrelatorService(nil, newTestOrchestrator(t, graphStore), incidents)
	svc.now = func() time.Time { return now }

	decision, err := svc.Correlate(ctx, "acme", models.Alert{Service: "payment-worker", Title: "Payment errors", ReceivedAt: now})
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if !decision.Matched || decision.IncidentID != "inc-1" {
		t.Fatalf("expected match on inc-1, got %+v", decision)
	}
	if decision.Score < decision.Threshold || len(decision.Scores) != 3 {
		t.Fatalf("unexpected scoring detail %+v", decision)
	}
	if decision.ID == "" || decision.Alert.ID == "" {
		t.Fatalf("decision and alert ids should be assigned: %+v", decision)
	}

	open, _ := incidents.OpenIncidents(ctx, "acme")
	if len(open) != 1 || !open[0].HasService("payment-worker") {
		t.Fatalf("matched incident should gain the alerting service: %+v", open)
	}
}

func TestCorrelateOpensNewIncidentBelowThreshold(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	incidents := repo.NewMemoryIncidentStore()
	incidents.Open("acme", models.Incident{ID: "inc-1", Services: []string{"payment-api"}, Title: "Payment errors", UpdatedAt: now.Add(-time.Minute)})

	svc := NewCorrelatorService(nil, newTestOrchestrator(t, graph.NewMemoryStore()), incidents)
	svc.now = func() time.Time { return now }

	decision, err := svc.Correlate(ctx, "acme", models.Alert{Service: "search", Title: "Index lag"})
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if decision.Matched || decision.IncidentID == "" || decision.IncidentID == "inc-1" {
		t.Fatalf("expected a new incident id, got %+v", decision)
	}
	if !decision.Alert.ReceivedAt.Equal(now) {
		t.Fatalf("missing received_at should default to now, got %v", decision.Alert.ReceivedAt)
	}
	if decision.Candidates != 1 {
		t.Fatalf("expected one candidate, got %d", decision.Candidates)
	}

	open, _ := incidents.OpenIncidents(ctx, "acme")
	if len(open) != 2 {
		t.Fatalf("expected the new incident to be opened, got %+v", open)
	}
}

func TestCorrelateTreatsIncidentLookupFailureAsNoMatch(t *testing.T) {
	store := &failingIncidentStore{openErr: errors.New("db down")}
	svc := NewCorrelatorService(nil, newTestOrchestrator(t, nil), store)

	decision, err := svc.Correlate(context.Background(), "acme", models.Alert{Service: "payment-api", Title: "Payment errors"})
	if err != nil {
		t.Fatalf("lookup failures must not fail the call: %v", err)
	}
	if decision.Matched || decision.Candidates != 0 {
		t.Fatalf("expected unmatched decision, got %+v", decision)
	}
	if len(store.recorded) != 1 {
		t.Fatalf("decision should still be recorded")
	}
}

func TestCorrelateReturnsRecordFailure(t *testing.T) {
	store := &failingIncidentStore{recordErr: errors.New("write failed")}
	svc := NewCorrelatorService(nil, newTestOrchestrator(t, nil), store)

	_, err := svc.Correlate(context.Background(), "acme", models.Alert{Service: "payment-api", Title: "Payment errors"})
	if err == nil {
		t.Fatal("expected record error")
	}
}

func TestCorrelateValidatesInput(t *testing.T) {
	svc := NewCorrelatorService(nil, newTestOrchestrator(t, nil), repo.NewMemoryIncidentStore())
	if _, err := svc.Correlate(context.Background(), " ", models.Alert{Service: "api"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for blank tenant, got %v", err)
	}

	// Alerts without a service or title still get a decision; they score too
	// low to join anything.
	decision, err := svc.Correlate(context.Background(), "acme", models.Alert{})
	if err != nil || decision.Matched || decision.IncidentID == "" {
		t.Fatalf("blank alert should open a new incident, got %+v (%v)", decision, err)
	}

	var unconfigured *CorrelatorService
	if _, err := unconfigured.Correlate(context.Background(), "acme", models.Alert{Service: "api"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestCorrelateHonoursCancellation(t *testing.T) {
	incidents := repo.NewMemoryIncidentStore()
	incidents.Open("acme", models.Incident{ID: "inc-1", Services: []string{"api"}, Title: "x", UpdatedAt: time.Now()})
	svc := NewCorrelatorService(nil, newTestOrchestrator(t, nil), incidents)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Correlate(ctx, "acme", models.Alert{Service: "api", Title: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if len(incidents.Decisions()) != 0 {
		t.Fatal("cancelled calls must not record decisions")
	}
}
