package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

// MemoryIncidentStore is the in-process incident store used when no database
// is configured. It applies decisions the same way as the Postgres store.
type MemoryIncidentStore struct {
	mu        sync.RWMutex
	incidents map[string]map[string]models.Incident
	decisions []models.Decision
}

// NewMemoryIncidentStore returns an empty store.
func NewMemoryIncidentStore() *MemoryIncidentStore {
	return &MemoryIncidentStore{incidents: make(map[string]map[string]models.Incident)}
}

// Open adds or replaces an open incident.
func (s *MemoryIncidentStore) Open(tenantID string, incident models.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenantID)[incident.ID] = incident
}

// Resolve closes an incident so it is no longer a correlation candidate.
func (s *MemoryIncidentStore) Resolve(tenantID, incidentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenant(tenantID), incidentID)
}

func (s *MemoryIncidentStore) tenant(id string) map[string]models.Incident {
	m, ok := s.incidents[id]
	if !ok {
		m = make(map[string]models.Incident)
		s.incidents[id] = m
	}
	return m
}

// OpenIncidents returns the tenant's open incidents, most recently updated first.
func (s *MemoryIncidentStore) OpenIncidents(ctx context.Context, tenantID string) ([]models.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Incident, 0, len(s.incidents[tenantID]))
	for _, inc := range s.incidents[tenantID] {
		inc.Services = append([]string(nil), inc.Services...)
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RecordDecision stores the decision and applies it to the incident set.
func (s *MemoryIncidentStore) RecordDecision(ctx context.Context, decision models.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, decision)
	if decision.IncidentID == "" {
		return nil
	}
	at := decision.DecidedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	incidents := s.tenant(decision.TenantID)
	if decision.Matched {
		inc, ok := incidents[decision.IncidentID]
		if !ok {
			return nil
		}
		inc.UpdatedAt = at
		if decision.Alert.Service != "" && !inc.HasService(decision.Alert.Service) {
			inc.Services = append(inc.Services, decision.Alert.Service)
		}
		incidents[inc.ID] = inc
		return nil
	}
	if _, exists := incidents[decision.IncidentID]; !exists {
		incidents[decision.IncidentID] = models.Incident{
			ID:        decision.IncidentID,
			Services:  nonEmpty(decision.Alert.Service),
			Title:     decision.Alert.Title,
			UpdatedAt: at,
		}
	}
	return nil
}

// Decisions returns recorded decisions in order.
func (s *MemoryIncidentStore) Decisions() []models.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Decision(nil), s.decisions...)
}
