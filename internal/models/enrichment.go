package models

// Enrichment bundles the per-signal metadata collected for one discovery run.
// References to resources (Member, Resource, Target, ...) may be node names,
// cloud resource ids (ARNs, self links) or endpoints; strategies resolve them
// against the node set.
type Enrichment struct {
	SecurityGroups   []SecurityGroup       `json:"security_groups,omitempty" yaml:"security_groups,omitempty"`
	IAMBindings      []IAMBinding          `json:"iam_bindings,omitempty" yaml:"iam_bindings,omitempty"`
	DNSRecords       []DNSRecord           `json:"dns_records,omitempty" yaml:"dns_records,omitempty"`
	DNSLookups       []DNSLookup           `json:"dns_lookups,omitempty" yaml:"dns_lookups,omitempty"`
	EnvVars          map[string][]EnvVar   `json:"env_vars,omitempty" yaml:"env_vars,omitempty"`
	LoadBalancers    []LoadBalancer        `json:"load_balancers,omitempty" yaml:"load_balancers,omitempty"`
	StorageGrants    []StorageGrant        `json:"storage_grants,omitempty" yaml:"storage_grants,omitempty"`
	SecretAccess     []SecretAccess        `json:"secret_access,omitempty" yaml:"secret_access,omitempty"`
	EventSources     []EventSourceMapping  `json:"event_sources,omitempty" yaml:"event_sources,omitempty"`
	Registrations    []ServiceRegistration `json:"registrations,omitempty" yaml:"registrations,omitempty"`
	DiscoveryLookups []ServiceLookup       `json:"discovery_lookups,omitempty" yaml:"discovery_lookups,omitempty"`
	GCPRelationships []GCPRelationship     `json:"gcp_relationships,omitempty" yaml:"gcp_relationships,omitempty"`
}

// SecurityGroup lists members of a group and the groups allowed to reach it.
type SecurityGroup struct {
	ID      string        `json:"id" yaml:"id"`
	Members []string      `json:"members" yaml:"members"`
	Ingress []IngressRule `json:"ingress,omitempty" yaml:"ingress,omitempty"`
}

// IngressRule allows traffic from SourceGroupID on Port.
type IngressRule struct {
	SourceGroupID string `json:"source_group_id" yaml:"source_group_id"`
	Port          int    `json:"port,omitempty" yaml:"port,omitempty"`
	Protocol      string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
}

// IAMBinding grants Principal a set of actions on Resources.
type IAMBinding struct {
	Principal string   `json:"principal" yaml:"principal"`
	Resources []string `json:"resources" yaml:"resources"`
	Actions   []string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// DNSRecord maps a record name to its values (A/AAAA addresses or CNAME/ALIAS targets).
type DNSRecord struct {
	Name   string   `json:"name" yaml:"name"`
	Type   string   `json:"type" yaml:"type"`
	Values []string `json:"values" yaml:"values"`
}

// DNSLookup is an observed resolution of Hostname by Source.
type DNSLookup struct {
	Source   string `json:"source" yaml:"source"`
	Hostname string `json:"hostname" yaml:"hostname"`
}

// EnvVar is a single environment variable on a workload.
type EnvVar struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// LoadBalancer describes a balancer node and its target groups.
type LoadBalancer struct {
	Name         string        `json:"name" yaml:"name"`
	TargetGroups []TargetGroup `json:"target_groups" yaml:"target_groups"`
}

// TargetGroup lists the targets a balancer forwards to.
type TargetGroup struct {
	Name    string   `json:"name" yaml:"name"`
	Port    int      `json:"port,omitempty" yaml:"port,omitempty"`
	Targets []string `json:"targets" yaml:"targets"`
}

// StorageGrant grants Principal access to a bucket or filesystem.
type StorageGrant struct {
	Principal string `json:"principal" yaml:"principal"`
	Resource  string `json:"resource" yaml:"resource"`
	// Mode is read, write or read_write.
	Mode string `json:"mode" yaml:"mode"`
}

// SecretAccess records a consumer reading from a secret store.
type SecretAccess struct {
	Consumer   string `json:"consumer" yaml:"consumer"`
	Store      string `json:"store" yaml:"store"`
	SecretName string `json:"secret_name,omitempty" yaml:"secret_name,omitempty"`
}

// EventSourceMapping binds a function to the queue, stream or topic that triggers it.
type EventSourceMapping struct {
	Function string `json:"function" yaml:"function"`
	Source   string `json:"source" yaml:"source"`
	Enabled  *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// ServiceRegistration registers Node under Namespace/Service in a discovery registry.
type ServiceRegistration struct {
	Node      string `json:"node" yaml:"node"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Service   string `json:"service" yaml:"service"`
}

// ServiceLookup is a consumer resolving Namespace/Service through the registry.
type ServiceLookup struct {
	Consumer  string `json:"consumer" yaml:"consumer"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Service   string `json:"service" yaml:"service"`
}

// GCPRelationship is a Cloud Asset Inventory style relationship between two assets.
type GCPRelationship struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Kind   string `json:"kind" yaml:"kind"`
}

// Snapshot is the immutable input of one discovery run.
type Snapshot struct {
	Nodes      []ServiceNode `json:"nodes" yaml:"nodes"`
	Enrichment Enrichment    `json:"enrichment" yaml:"enrichment"`
}
