package models

import "time"

// Alert is a single monitoring event reporting a problem on a named service.
type Alert struct {
	ID         string    `json:"id,omitempty" yaml:"id,omitempty"`
	Service    string    `json:"service" yaml:"service"`
	Title      string    `json:"title" yaml:"title"`
	Source     string    `json:"source,omitempty" yaml:"source,omitempty"`
	Severity   string    `json:"severity,omitempty" yaml:"severity,omitempty"`
	ReceivedAt time.Time `json:"received_at" yaml:"received_at"`
}

// Incident is the read-only view of an open incident that alerts are scored against.
type Incident struct {
	ID        string    `json:"id" yaml:"id"`
	Services  []string  `json:"services" yaml:"services"`
	Title     string    `json:"title" yaml:"title"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// HasService reports whether service is one of the incident's services.
func (i Incident) HasService(service string) bool {
	for _, s := range i.Services {
		if s == service {
			return true
		}
	}
	return false
}

// StrategyScore is the transient per-strategy signal for one (alert, incident) pair.
type StrategyScore struct {
	Strategy string  `json:"strategy"`
	Value    float64 `json:"value"`
	Weight   float64 `json:"weight"`
	Error    string  `json:"error,omitempty"`
}

// CandidateScore is the combined score of one incident for an alert.
type CandidateScore struct {
	IncidentID string          `json:"incident_id"`
	Combined   float64         `json:"combined"`
	Scores     []StrategyScore `json:"scores"`
}

// Decision records whether an alert joined an open incident or should open a new one.
type Decision struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Alert      Alert           `json:"alert"`
	Matched    bool            `json:"matched"`
	IncidentID string          `json:"incident_id,omitempty"`
	Score      float64         `json:"score"`
	Threshold  float64         `json:"threshold"`
	Scores     []StrategyScore `json:"scores,omitempty"`
	Candidates int             `json:"candidates"`
	DecidedAt  time.Time       `json:"decided_at"`
}

// Outcome returns the label used for metrics and logs.
func (d Decision) Outcome() string {
	if d.Matched {
		return OutcomeMatched
	}
	return OutcomeNewIncident
}

const (
	// OutcomeMatched labels decisions that attached the alert to an incident.
	OutcomeMatched = "matched"
	// OutcomeNewIncident labels decisions that asked the caller to open an incident.
	OutcomeNewIncident = "new_incident"
)
