package inference

import (
	"context"
	"strings"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const gcpConfidence = 0.9

// gcpKinds maps Cloud Asset relationship kinds onto edge types. Unlisted
// kinds fall back to the target's resource type.
var gcpKinds = map[string]models.DependencyType{
	"instance_to_instancegroup": models.DependencyConnectsTo,
	"cloudsql_connection":       models.DependencyConnectsTo,
	"serverless_vpc_access":     models.DependencyConnectsTo,
	"pubsub_subscription":       models.DependencyConsumesFrom,
	"pubsub_publisher":          models.DependencyPublishesTo,
	"backend_service":           models.DependencyRoutesTo,
	"url_map":                   models.DependencyRoutesTo,
	"gcs_reader":                models.DependencyReadsFrom,
	"gcs_writer":                models.DependencyWritesTo,
	"secret_accessor":           models.DependencyUsesSecret,
	"run_invoker":               models.DependencyCalls,
	"function_invoker":          models.DependencyCalls,
}

// GCPRelationshipStrategy converts asset inventory relationships into edges.
type GCPRelationshipStrategy struct{}

// Name implements Strategy.
func (GCPRelationshipStrategy) Name() string { return SourceGCPRelationship }

// Infer implements Strategy.
func (GCPRelationshipStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	out := newEdgeSet()
	for _, rel := range enrichment.GCPRelationships {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		source, ok := idx.Resolve(rel.Source)
		if !ok {
			continue
		}
		target, ok := idx.Resolve(rel.Target)
		if !ok {
			continue
		}
		depType, ok := gcpKinds[strings.ToLower(strings.TrimSpace(rel.Kind))]
		if !ok {
			depType = dependencyTypeFor(target.ResourceType)
		}
		out.add(propose(source, target, depType, gcpConfidence, SourceGCPRelationship))
	}
	return out.result(), nil
}
