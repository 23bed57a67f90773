// Package inference proposes service dependency edges from enriched resource
// metadata and folds the proposals into one canonical edge per service pair.
package inference

import (
	"context"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

// Provenance labels, one per strategy. They double as strategy names.
const (
	SourceNetworkTopology  = "network_topology"
	SourceSecurityGroup    = "security_group"
	SourceIAMPolicy        = "iam_policy"
	SourceDNS              = "dns"
	SourceEnvVar           = "env_var"
	SourceLoadBalancer     = "load_balancer"
	SourceStorageAccess    = "storage_access"
	SourceSecretStore      = "secret_store"
	SourceEventSource      = "event_source"
	SourceServiceDiscovery = "service_discovery"
	SourceGCPRelationship  = "gcp_relationship"
)

// Strategy proposes candidate dependency edges from one enrichment signal.
// Implementations treat nodes and enrichment as read-only and never talk to
// each other.
type Strategy interface {
	Name() string
	Infer(ctx context.Context, tenantID string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error)
}

// DefaultStrategies returns the full registry of inference strategies.
func DefaultStrategies(allow *AllowList) []Strategy {
	return []Strategy{
		NewNetworkProximity(allow),
		SecurityGroupStrategy{},
		IAMStrategy{},
		DNSStrategy{},
		EnvVarStrategy{},
		LoadBalancerStrategy{},
		StorageStrategy{},
		SecretStoreStrategy{},
		EventSourceStrategy{},
		ServiceDiscoveryStrategy{},
		GCPRelationshipStrategy{},
	}
}

// Without returns strategies minus those whose names appear in disabled.
func Without(strategies []Strategy, disabled ...string) []Strategy {
	if len(disabled) == 0 {
		return strategies
	}
	skip := make(map[string]struct{}, len(disabled))
	for _, name := range disabled {
		skip[name] = struct{}{}
	}
	out := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if _, ok := skip[s.Name()]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

func propose(from, to models.ServiceNode, depType models.DependencyType, confidence float64, source string) models.DependencyEdge {
	return models.DependencyEdge{
		FromService:    from.Name,
		ToService:      to.Name,
		DependencyType: depType,
		Confidence:     confidence,
		DiscoveredFrom: []string{source},
	}
}

// dependencyTypeFor picks the edge type implied by the backend's resource type.
func dependencyTypeFor(target models.ResourceType) models.DependencyType {
	switch target {
	case models.ResourceMessageQueue:
		return models.DependencyPublishesTo
	case models.ResourceStorageBucket:
		return models.DependencyReadsFrom
	case models.ResourceSecretStore:
		return models.DependencyUsesSecret
	case models.ResourceVM, models.ResourceServerless, models.ResourceKubernetesCluster,
		models.ResourceContainerService, models.ResourceLoadBalancer, models.ResourceAPIGateway:
		return models.DependencyCalls
	default:
		return models.DependencyConnectsTo
	}
}

// edgeSet collects proposals from one strategy, dropping self edges and exact repeats.
type edgeSet struct {
	seen  map[models.EdgeKey]struct{}
	edges []models.DependencyEdge
}

func newEdgeSet() *edgeSet {
	return &edgeSet{seen: make(map[models.EdgeKey]struct{})}
}

func (s *edgeSet) add(edge models.DependencyEdge) {
	if edge.FromService == "" || edge.ToService == "" || edge.FromService == edge.ToService {
		return
	}
	key := edge.Key()
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.edges = append(s.edges, edge)
}

func (s *edgeSet) result() []models.DependencyEdge {
	models.SortEdges(s.edges)
	return s.edges
}
