package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

// MemoryStore keeps per-tenant graphs in process. It backs local runs and
// tests, and satisfies both the write Store and the traversal reads used by
// topology scoring.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenantGraph
}

type tenantGraph struct {
	services map[string]models.ServiceNode
	edges    map[models.EdgeKey]models.DependencyEdge
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[string]*tenantGraph)}
}

func (m *MemoryStore) tenant(id string) *tenantGraph {
	g, ok := m.tenants[id]
	if !ok {
		g = &tenantGraph{
			services: make(map[string]models.ServiceNode),
			edges:    make(map[models.EdgeKey]models.DependencyEdge),
		}
		m.tenants[id] = g
	}
	return g
}

// BatchUpsertServices implements Store.
func (m *MemoryStore) BatchUpsertServices(ctx context.Context, tenantID string, services []models.ServiceNode) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.tenant(tenantID)
	for _, svc := range services {
		g.services[svc.Name] = svc
	}
	return len(services), nil
}

// BatchUpsertDependencies implements Store. Endpoints missing from the
// service set are created as unknown nodes.
func (m *MemoryStore) BatchUpsertDependencies(ctx context.Context, tenantID string, edges []models.DependencyEdge) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.tenant(tenantID)
	for _, edge := range edges {
		for _, name := range []string{edge.FromService, edge.ToService} {
			if _, ok := g.services[name]; !ok {
				g.services[name] = models.ServiceNode{Name: name, ResourceType: models.ResourceUnknown}
			}
		}
		edge.DiscoveredFrom = append([]string(nil), edge.DiscoveredFrom...)
		g.edges[edge.Key()] = edge
	}
	return len(edges), nil
}

// Services returns the tenant's services sorted by name.
func (m *MemoryStore) Services(tenantID string) []models.ServiceNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.tenants[tenantID]
	if !ok {
		return nil
	}
	out := make([]models.ServiceNode, 0, len(g.services))
	for _, svc := range g.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dependencies returns the tenant's edges sorted by (from, to).
func (m *MemoryStore) Dependencies(tenantID string) []models.DependencyEdge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.tenants[tenantID]
	if !ok {
		return nil
	}
	out := make([]models.DependencyEdge, 0, len(g.edges))
	for _, edge := range g.edges {
		out = append(out, edge)
	}
	models.SortEdges(out)
	return out
}

// GetAllUpstream returns what service depends on, up to maxDepth hops.
func (m *MemoryStore) GetAllUpstream(ctx context.Context, tenantID, service string, maxDepth int) ([]models.PathNode, error) {
	return m.walk(ctx, tenantID, service, maxDepth, false)
}

// GetAllDownstream returns the services that depend on service, up to maxDepth hops.
func (m *MemoryStore) GetAllDownstream(ctx context.Context, tenantID, service string, maxDepth int) ([]models.PathNode, error) {
	return m.walk(ctx, tenantID, service, maxDepth, true)
}

func (m *MemoryStore) walk(ctx context.Context, tenantID, service string, maxDepth int, reverse bool) ([]models.PathNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.tenants[tenantID]
	if !ok || maxDepth <= 0 {
		return nil, nil
	}

	adjacency := make(map[string][]string)
	for key := range g.edges {
		if reverse {
			adjacency[key.To] = append(adjacency[key.To], key.From)
		} else {
			adjacency[key.From] = append(adjacency[key.From], key.To)
		}
	}

	seen := map[string]struct{}{service: {}}
	frontier := []string{service}
	var out []models.PathNode
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, name := range frontier {
			for _, neighbour := range adjacency[name] {
				if _, ok := seen[neighbour]; ok {
					continue
				}
				seen[neighbour] = struct{}{}
				out = append(out, models.PathNode{Name: neighbour, Depth: depth})
				next = append(next, neighbour)
			}
		}
		frontier = next
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
