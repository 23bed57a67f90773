package inference

import (
	"math"
	"sort"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

// Deduplicate folds proposals into one edge per (from, to) pair. The survivor
// carries the highest confidence and that proposal's type; equal confidences
// keep the lexically smallest type. Provenance labels are unioned. NaN
// proposals are dropped and confidences clamped to [0, 1]. The result is
// sorted by (from, to) and does not depend on input order.
func Deduplicate(edges []models.DependencyEdge) []models.DependencyEdge {
	type group struct {
		edge    models.DependencyEdge
		sources map[string]struct{}
	}
	groups := make(map[models.EdgeKey]*group, len(edges))
	for _, edge := range edges {
		if edge.FromService == "" || edge.ToService == "" || edge.FromService == edge.ToService {
			continue
		}
		if math.IsNaN(edge.Confidence) {
			continue
		}
		edge.Confidence = math.Min(1, math.Max(0, edge.Confidence))
		key := edge.Key()
		g, ok := groups[key]
		if !ok {
			g = &group{edge: edge, sources: make(map[string]struct{})}
			groups[key] = g
		} else if edge.Confidence > g.edge.Confidence ||
			(edge.Confidence == g.edge.Confidence && edge.DependencyType < g.edge.DependencyType) {
			g.edge.DependencyType = edge.DependencyType
			g.edge.Confidence = edge.Confidence
		}
		for _, src := range edge.DiscoveredFrom {
			if src != "" {
				g.sources[src] = struct{}{}
			}
		}
	}

	out := make([]models.DependencyEdge, 0, len(groups))
	for _, g := range groups {
		labels := make([]string, 0, len(g.sources))
		for src := range g.sources {
			labels = append(labels, src)
		}
		sort.Strings(labels)
		g.edge.DiscoveredFrom = labels
		out = append(out, g.edge)
	}
	models.SortEdges(out)
	return out
}
