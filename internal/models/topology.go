package models

import (
	"sort"
	"time"
)

// ResourceType classifies a discovered service node.
type ResourceType string

const (
	ResourceVM                ResourceType = "vm"
	ResourceServerless        ResourceType = "serverless_function"
	ResourceKubernetesCluster ResourceType = "kubernetes_cluster"
	ResourceContainerService  ResourceType = "container_service"
	ResourceDatabase          ResourceType = "database"
	ResourceCache             ResourceType = "cache"
	ResourceMessageQueue      ResourceType = "message_queue"
	ResourceSearchEngine      ResourceType = "search_engine"
	ResourceStorageBucket     ResourceType = "storage_bucket"
	ResourceFilesystem        ResourceType = "filesystem"
	ResourceSecretStore       ResourceType = "secret_store"
	ResourceLoadBalancer      ResourceType = "load_balancer"
	ResourceAPIGateway        ResourceType = "api_gateway"
	ResourceUnknown           ResourceType = "unknown"
)

// ParseResourceType maps a raw string onto a known ResourceType.
func ParseResourceType(value string) ResourceType {
	switch rt := ResourceType(value); rt {
	case ResourceVM, ResourceServerless, ResourceKubernetesCluster, ResourceContainerService,
		ResourceDatabase, ResourceCache, ResourceMessageQueue, ResourceSearchEngine,
		ResourceStorageBucket, ResourceFilesystem, ResourceSecretStore, ResourceLoadBalancer,
		ResourceAPIGateway:
		return rt
	default:
		return ResourceUnknown
	}
}

// DependencyType describes how the consumer depends on the backend.
type DependencyType string

const (
	DependencyConnectsTo   DependencyType = "connects_to"
	DependencyCalls        DependencyType = "calls"
	DependencyRoutesTo     DependencyType = "routes_to"
	DependencyReadsFrom    DependencyType = "reads_from"
	DependencyWritesTo     DependencyType = "writes_to"
	DependencyConsumesFrom DependencyType = "consumes_from"
	DependencyPublishesTo  DependencyType = "publishes_to"
	DependencyUsesSecret   DependencyType = "uses_secret"
	DependencyDiscovers    DependencyType = "discovers"
)

// ServiceNode is a graph vertex for one discovered resource.
type ServiceNode struct {
	Name            string            `json:"name" yaml:"name"`
	ResourceType    ResourceType      `json:"resource_type" yaml:"resource_type"`
	Provider        string            `json:"provider,omitempty" yaml:"provider,omitempty"`
	VPCID           string            `json:"vpc_id,omitempty" yaml:"vpc_id,omitempty"`
	CloudResourceID string            `json:"cloud_resource_id,omitempty" yaml:"cloud_resource_id,omitempty"`
	Endpoint        string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Labels          map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// DependencyEdge is a directed consumer -> backend relationship.
type DependencyEdge struct {
	FromService    string         `json:"from_service" yaml:"from_service"`
	ToService      string         `json:"to_service" yaml:"to_service"`
	DependencyType DependencyType `json:"dependency_type" yaml:"dependency_type"`
	Confidence     float64        `json:"confidence" yaml:"confidence"`
	DiscoveredFrom []string       `json:"discovered_from" yaml:"discovered_from"`
}

// Key returns the ordered (from, to) pair identifying the edge.
func (e DependencyEdge) Key() EdgeKey {
	return EdgeKey{From: e.FromService, To: e.ToService}
}

// EdgeKey identifies an ordered pair of services.
type EdgeKey struct {
	From string
	To   string
}

// SortEdges orders edges by (from, to) in place.
func SortEdges(edges []DependencyEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromService != edges[j].FromService {
			return edges[i].FromService < edges[j].FromService
		}
		return edges[i].ToService < edges[j].ToService
	})
}

// PathNode is a service reached from a start node at the given hop depth.
type PathNode struct {
	Name  string `json:"name"`
	Depth int    `json:"depth"`
}

// StrategyRun summarises one inference strategy inside a discovery run.
type StrategyRun struct {
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Edges      int    `json:"edges"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// DiscoveryReport summarises a discovery run end to end.
type DiscoveryReport struct {
	RunID           string           `json:"run_id"`
	TenantID        string           `json:"tenant_id"`
	Nodes           int              `json:"nodes"`
	Proposed        int              `json:"proposed"`
	Edges           []DependencyEdge `json:"edges"`
	Strategies      []StrategyRun    `json:"strategies"`
	Failures        int              `json:"failures"`
	ServicesWritten int              `json:"services_written"`
	EdgesWritten    int              `json:"edges_written"`
	DryRun          bool             `json:"dry_run"`
	StartedAt       time.Time        `json:"started_at"`
	DurationMs      int64            `json:"duration_ms"`
}
