package correlation

import (
	"context"
	"log/slog"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

// DefaultTopologyDepth bounds graph traversal for the topology strategy.
const DefaultTopologyDepth = 3

var (
	upstreamWeights   = map[int]float64{1: 1.0, 2: 0.7, 3: 0.4}
	downstreamWeights = map[int]float64{1: 0.8, 2: 0.5, 3: 0.2}
)

// Topology scores alerts by graph distance between the alerting service and the
// incident's services. Upstream neighbours (what the alerting service depends
// on) weigh more than downstream ones.
type Topology struct {
	store    GraphStore
	maxDepth int
	logger   *slog.Logger
}

// NewTopology constructs a Topology strategy.
func NewTopology(store GraphStore, maxDepth int, logger *slog.Logger) *Topology {
	if maxDepth <= 0 {
		maxDepth = DefaultTopologyDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Topology{store: store, maxDepth: maxDepth, logger: logger}
}

// Name implements Strategy.
func (t *Topology) Name() string { return StrategyTopology }

// Score implements Strategy. Graph store failures degrade to 0 and are never returned.
func (t *Topology) Score(ctx context.Context, tenantID string, alert models.Alert, incident models.Incident) (float64, error) {
	if alert.Service == "" || len(incident.Services) == 0 {
		return 0, nil
	}
	if incident.HasService(alert.Service) {
		return 1, nil
	}
	if t.store == nil {
		return 0, nil
	}

	upstream, err := t.store.GetAllUpstream(ctx, tenantID, alert.Service, t.maxDepth)
	if err != nil {
		t.logger.Debug("topology upstream lookup failed", slog.String("service", alert.Service), slog.Any("error", err))
		return 0, nil
	}
	downstream, err := t.store.GetAllDownstream(ctx, tenantID, alert.Service, t.maxDepth)
	if err != nil {
		t.logger.Debug("topology downstream lookup failed", slog.String("service", alert.Service), slog.Any("error", err))
		return 0, nil
	}

	up := depthIndex(upstream)
	down := depthIndex(downstream)

	best := 0.0
	for _, service := range incident.Services {
		if depth, ok := up[service]; ok && upstreamWeights[depth] > best {
			best = upstreamWeights[depth]
		}
		if depth, ok := down[service]; ok && downstreamWeights[depth] > best {
			best = downstreamWeights[depth]
		}
	}
	return clamp01(best), nil
}

// depthIndex keeps the shortest depth seen for each service.
func depthIndex(nodes []models.PathNode) map[string]int {
	index := make(map[string]int, len(nodes))
	for _, node := range nodes {
		if node.Name == "" || node.Depth <= 0 {
			continue
		}
		if existing, ok := index[node.Name]; !ok || node.Depth < existing {
			index[node.Name] = node.Depth
		}
	}
	return index
}
