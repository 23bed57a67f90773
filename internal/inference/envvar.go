package inference

import (
	"context"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const (
	envVarConfidence = 0.9
	minEnvValueLen   = 3
)

// EnvVarStrategy links a workload to every node its environment points at
// (connection strings, hostnames, ARNs, plain service names).
type EnvVarStrategy struct{}

// Name implements Strategy.
func (EnvVarStrategy) Name() string { return SourceEnvVar }

// Infer implements Strategy.
func (EnvVarStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	owners := make([]string, 0, len(enrichment.EnvVars))
	for owner := range enrichment.EnvVars {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	out := newEdgeSet()
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		source, ok := idx.Resolve(owner)
		if !ok {
			continue
		}
		for _, env := range enrichment.EnvVars[owner] {
			for _, value := range strings.Split(env.Value, ",") {
				value = strings.Trim(strings.TrimSpace(value), `"'`)
				if len(value) < minEnvValueLen {
					continue
				}
				target, ok := idx.Resolve(value)
				if !ok {
					continue
				}
				out.add(propose(source, target, envDependencyType(env.Key, target.ResourceType), envVarConfidence, SourceEnvVar))
			}
		}
	}
	return out.result(), nil
}

// envDependencyType refines the edge type for queues, whose direction is
// often visible in the variable name.
func envDependencyType(key string, target models.ResourceType) models.DependencyType {
	if target == models.ResourceMessageQueue {
		k := strings.ToLower(key)
		if strings.Contains(k, "consume") || strings.Contains(k, "subscri") || strings.Contains(k, "listen") {
			return models.DependencyConsumesFrom
		}
	}
	return dependencyTypeFor(target)
}
