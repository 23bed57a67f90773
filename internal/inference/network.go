package inference

import (
	"context"
	"sort"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const networkConfidence = 0.5

// NetworkProximity is the weakest signal: workloads and backends sharing a VPC
// probably talk to each other, but only for allow-listed type combinations.
type NetworkProximity struct {
	allow *AllowList
}

// NewNetworkProximity constructs the strategy; a nil allow-list uses the defaults.
func NewNetworkProximity(allow *AllowList) *NetworkProximity {
	if allow == nil {
		allow = DefaultAllowList()
	}
	return &NetworkProximity{allow: allow}
}

// Name implements Strategy.
func (s *NetworkProximity) Name() string { return SourceNetworkTopology }

// Infer implements Strategy.
func (s *NetworkProximity) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, _ models.Enrichment) ([]models.DependencyEdge, error) {
	byVPC := make(map[string][]models.ServiceNode)
	for _, node := range nodes {
		if node.VPCID == "" || node.Name == "" {
			continue
		}
		byVPC[node.VPCID] = append(byVPC[node.VPCID], node)
	}

	vpcs := make([]string, 0, len(byVPC))
	for vpc := range byVPC {
		vpcs = append(vpcs, vpc)
	}
	sort.Strings(vpcs)

	out := newEdgeSet()
	for _, vpc := range vpcs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var consumers, backends []models.ServiceNode
		for _, node := range byVPC[vpc] {
			if _, ok := consumerTypes[node.ResourceType]; ok {
				consumers = append(consumers, node)
			}
			if _, ok := backendTypes[node.ResourceType]; ok {
				backends = append(backends, node)
			}
		}
		for _, consumer := range consumers {
			for _, backend := range backends {
				if consumer.ResourceType == backend.ResourceType || !s.allow.Allows(consumer.ResourceType, backend.ResourceType) {
					continue
				}
				out.add(propose(consumer, backend, dependencyTypeFor(backend.ResourceType), networkConfidence, SourceNetworkTopology))
			}
		}
	}
	return out.result(), nil
}
