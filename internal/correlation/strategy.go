// Package correlation scores incoming alerts against open incidents and picks
// the incident an alert belongs to, if any.
package correlation

import (
	"context"
	"math"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const (
	// StrategyTimeWindow names the temporal proximity strategy.
	StrategyTimeWindow = "time_window"
	// StrategyTopology names the dependency-graph distance strategy.
	StrategyTopology = "topology"
	// StrategySimilarity names the title/service similarity strategy.
	StrategySimilarity = "similarity"
)

// Strategy is one independent correlation signal. Implementations return a
// value in [0,1]; the orchestrator clamps anything outside that range.
type Strategy interface {
	Name() string
	Score(ctx context.Context, tenantID string, alert models.Alert, incident models.Incident) (float64, error)
}

// GraphStore is the read side of the service dependency graph.
type GraphStore interface {
	GetAllUpstream(ctx context.Context, tenantID, service string, maxDepth int) ([]models.PathNode, error)
	GetAllDownstream(ctx context.Context, tenantID, service string, maxDepth int) ([]models.PathNode, error)
}

// EmbeddingProvider converts text to a dense vector. A nil vector means the
// provider is unavailable; it never reports an error to the caller.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) []float32
}

func clamp01(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
