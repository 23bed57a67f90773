package inference

import (
	"context"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const (
	dnsConfidence = 0.8
	maxDNSHops    = 5
)

// DNSStrategy links a node that looked up a hostname to the node the name
// resolves to, following CNAME/ALIAS chains through the record set.
type DNSStrategy struct{}

// Name implements Strategy.
func (DNSStrategy) Name() string { return SourceDNS }

// Infer implements Strategy.
func (DNSStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	zone := make(map[string][]string, len(enrichment.DNSRecords))
	for _, record := range enrichment.DNSRecords {
		name := normaliseHost(record.Name)
		if name == "" {
			continue
		}
		zone[name] = append(zone[name], record.Values...)
	}

	out := newEdgeSet()
	for _, lookup := range enrichment.DNSLookups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		source, ok := idx.Resolve(lookup.Source)
		if !ok {
			continue
		}
		target, ok := resolveName(idx, zone, lookup.Hostname)
		if !ok {
			continue
		}
		out.add(propose(source, target, dependencyTypeFor(target.ResourceType), dnsConfidence, SourceDNS))
	}
	return out.result(), nil
}

// resolveName walks the zone breadth-first from hostname and returns the
// first value that maps onto a node. Chains longer than maxDNSHops are cut.
func resolveName(idx *NodeIndex, zone map[string][]string, hostname string) (models.ServiceNode, bool) {
	start := normaliseHost(hostname)
	if start == "" {
		return models.ServiceNode{}, false
	}
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}
	for hop := 0; hop <= maxDNSHops && len(frontier) > 0; hop++ {
		var next []string
		for _, name := range frontier {
			if node, ok := idx.Resolve(name); ok {
				return node, true
			}
			for _, value := range zone[name] {
				value = normaliseHost(value)
				if _, seen := visited[value]; seen || value == "" {
					continue
				}
				visited[value] = struct{}{}
				next = append(next, value)
			}
		}
		frontier = next
	}
	return models.ServiceNode{}, false
}
