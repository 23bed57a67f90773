package inference

import (
	"context"
	"strings"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const (
	loadBalancerConfidence     = 0.95
	serviceDiscoveryConfidence = 0.85
)

// LoadBalancerStrategy links balancers to the targets in their target groups.
type LoadBalancerStrategy struct{}

// Name implements Strategy.
func (LoadBalancerStrategy) Name() string { return SourceLoadBalancer }

// Infer implements Strategy.
func (LoadBalancerStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	out := newEdgeSet()
	for _, lb := range enrichment.LoadBalancers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		balancer, ok := idx.Resolve(lb.Name)
		if !ok {
			continue
		}
		for _, group := range lb.TargetGroups {
			for _, ref := range group.Targets {
				target, ok := idx.Resolve(ref)
				if !ok {
					continue
				}
				out.add(propose(balancer, target, models.DependencyRoutesTo, loadBalancerConfidence, SourceLoadBalancer))
			}
		}
	}
	return out.result(), nil
}

// ServiceDiscoveryStrategy joins registry lookups against registrations:
// whoever resolves namespace/service depends on the nodes registered there.
type ServiceDiscoveryStrategy struct{}

// Name implements Strategy.
func (ServiceDiscoveryStrategy) Name() string { return SourceServiceDiscovery }

// Infer implements Strategy.
func (ServiceDiscoveryStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	registry := make(map[string][]models.ServiceNode, len(enrichment.Registrations))
	for _, reg := range enrichment.Registrations {
		node, ok := idx.Resolve(reg.Node)
		if !ok {
			continue
		}
		key := registryKey(reg.Namespace, reg.Service)
		registry[key] = append(registry[key], node)
	}

	out := newEdgeSet()
	for _, lookup := range enrichment.DiscoveryLookups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		consumer, ok := idx.Resolve(lookup.Consumer)
		if !ok {
			continue
		}
		for _, target := range registry[registryKey(lookup.Namespace, lookup.Service)] {
			out.add(propose(consumer, target, models.DependencyDiscovers, serviceDiscoveryConfidence, SourceServiceDiscovery))
		}
	}
	return out.result(), nil
}

func registryKey(namespace, service string) string {
	return strings.ToLower(strings.TrimSpace(namespace)) + "/" + strings.ToLower(strings.TrimSpace(service))
}
