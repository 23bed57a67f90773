package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/miradorstack/mirador-correlator/internal/cache"
	"github.com/miradorstack/mirador-correlator/internal/models"
	"github.com/miradorstack/mirador-correlator/internal/utils"
)

const (
	directionUpstream   = "up"
	directionDownstream = "down"
)

// traversalQueries walk DEPENDS_ON edges breadth-first without revisiting a
// node on the same path. Upstream follows from -> to, downstream to -> from.
var traversalQueries = map[string]string{
	directionUpstream:   traversalQuery("from_service", "to_service"),
	directionDownstream: traversalQuery("to_service", "from_service"),
}

func traversalQuery(start, next string) string {
	return fmt.Sprintf(`
WITH RECURSIVE walk(name, depth, path) AS (
	SELECT e.%[2]s, 1, ARRAY[$2::text, e.%[2]s]
	FROM dependency_edges e
	WHERE e.tenant_id = $1 AND e.%[1]s = $2
	UNION ALL
	SELECT e.%[2]s, w.depth + 1, w.path || e.%[2]s
	FROM walk w
	JOIN dependency_edges e ON e.tenant_id = $1 AND e.%[1]s = w.name
	WHERE w.depth < $3 AND NOT e.%[2]s = ANY(w.path)
)
SELECT name, MIN(depth) AS depth
FROM walk
WHERE name <> $2
GROUP BY name
ORDER BY depth, name`, start, next)
}

// PostgresGraphStore persists the service graph in Postgres and serves
// bounded traversals, caching read results per tenant.
type PostgresGraphStore struct {
	db       *sql.DB
	cache    cache.Provider
	cacheTTL time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// NewPostgresGraphStore constructs the store. A nil cache disables read caching.
func NewPostgresGraphStore(db *sql.DB, cacheProvider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) *PostgresGraphStore {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresGraphStore{
		db:          db,
		cache:       cacheProvider,
		cacheTTL:    cacheTTL,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

// BatchUpsertServices inserts or updates nodes keyed by (tenant, name).
func (s *PostgresGraphStore) BatchUpsertServices(ctx context.Context, tenantID string, services []models.ServiceNode) (int, error) {
	if len(services) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, utils.StoreErr("graph.upsert_services", "begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO service_nodes (tenant_id, name, resource_type, provider, vpc_id, cloud_resource_id, endpoint, labels, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (tenant_id, name) DO UPDATE SET
			resource_type = EXCLUDED.resource_type,
			provider = EXCLUDED.provider,
			vpc_id = EXCLUDED.vpc_id,
			cloud_resource_id = EXCLUDED.cloud_resource_id,
			endpoint = EXCLUDED.endpoint,
			labels = EXCLUDED.labels,
			updated_at = now()`)
	if err != nil {
		return 0, utils.StoreErr("graph.upsert_services", "prepare statement", err)
	}
	defer stmt.Close()

	for _, svc := range services {
		labels, err := json.Marshal(svc.Labels)
		if err != nil || svc.Labels == nil {
			labels = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, tenantID, svc.Name, string(svc.ResourceType), svc.Provider, svc.VPCID, svc.CloudResourceID, svc.Endpoint, labels); err != nil {
			return 0, utils.StoreErr("graph.upsert_services", "upsert "+svc.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, utils.StoreErr("graph.upsert_services", "commit", err)
	}
	s.bumpGeneration(tenantID)
	return len(services), nil
}

// BatchUpsertDependencies inserts or replaces edges keyed by (tenant, from, to).
// Missing endpoints are created as unknown nodes.
func (s *PostgresGraphStore) BatchUpsertDependencies(ctx context.Context, tenantID string, edges []models.DependencyEdge) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, utils.StoreErr("graph.upsert_edges", "begin transaction", err)
	}
	defer tx.Rollback()

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO service_nodes (tenant_id, name, resource_type)
		VALUES ($1, $2, 'unknown')
		ON CONFLICT (tenant_id, name) DO NOTHING`)
	if err != nil {
		return 0, utils.StoreErr("graph.upsert_edges", "prepare node statement", err)
	}
	defer nodeStmt.Close()

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dependency_edges (tenant_id, from_service, to_service, dependency_type, confidence, discovered_from, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant_id, from_service, to_service) DO UPDATE SET
			dependency_type = EXCLUDED.dependency_type,
			confidence = EXCLUDED.confidence,
			discovered_from = EXCLUDED.discovered_from,
			updated_at = now()`)
	if err != nil {
		return 0, utils.StoreErr("graph.upsert_edges", "prepare edge statement", err)
	}
	defer edgeStmt.Close()

	for _, edge := range edges {
		for _, name := range []string{edge.FromService, edge.ToService} {
			if _, err := nodeStmt.ExecContext(ctx, tenantID, name); err != nil {
				return 0, utils.StoreErr("graph.upsert_edges", "ensure node "+name, err)
			}
		}
		if _, err := edgeStmt.ExecContext(ctx, tenantID, edge.FromService, edge.ToService,
			string(edge.DependencyType), edge.Confidence, pq.Array(edge.DiscoveredFrom)); err != nil {
			return 0, utils.StoreErr("graph.upsert_edges", fmt.Sprintf("upsert %s->%s", edge.FromService, edge.ToService), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, utils.StoreErr("graph.upsert_edges", "commit", err)
	}
	s.bumpGeneration(tenantID)
	return len(edges), nil
}

// GetAllUpstream returns what service depends on, up to maxDepth hops.
func (s *PostgresGraphStore) GetAllUpstream(ctx context.Context, tenantID, service string, maxDepth int) ([]models.PathNode, error) {
	return s.traverse(ctx, tenantID, service, maxDepth, directionUpstream)
}

// GetAllDownstream returns the services depending on service, up to maxDepth hops.
func (s *PostgresGraphStore) GetAllDownstream(ctx context.Context, tenantID, service string, maxDepth int) ([]models.PathNode, error) {
	return s.traverse(ctx, tenantID, service, maxDepth, directionDownstream)
}

func (s *PostgresGraphStore) traverse(ctx context.Context, tenantID, service string, maxDepth int, direction string) ([]models.PathNode, error) {
	if maxDepth <= 0 || service == "" {
		return nil, nil
	}
	key := s.cacheKey(tenantID, service, maxDepth, direction)
	if s.cacheTTL > 0 {
		var cached []models.PathNode
		if cache.GetJSON(ctx, s.cache, key, &cached) == nil {
			return cached, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, traversalQueries[direction], tenantID, service, maxDepth)
	if err != nil {
		return nil, utils.StoreErr("graph.traverse", direction+"stream query", err)
	}
	defer rows.Close()

	var out []models.PathNode
	for rows.Next() {
		var node models.PathNode
		if err := rows.Scan(&node.Name, &node.Depth); err != nil {
			return nil, utils.StoreErr("graph.traverse", "scan row", err)
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.StoreErr("graph.traverse", "iterate rows", err)
	}

	if s.cacheTTL > 0 {
		if err := cache.SetJSON(ctx, s.cache, key, out, s.cacheTTL); err != nil {
			s.logger.Debug("graph cache set failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return out, nil
}

// cacheKey embeds a per-tenant generation so writes through this store stop
// serving stale traversals; other writers are bounded by the TTL.
func (s *PostgresGraphStore) cacheKey(tenantID, service string, depth int, direction string) string {
	s.mu.Lock()
	gen := s.generations[tenantID]
	s.mu.Unlock()
	return fmt.Sprintf("graph:%s:%d:%s:%d:%s", tenantID, gen, direction, depth, service)
}

func (s *PostgresGraphStore) bumpGeneration(tenantID string) {
	s.mu.Lock()
	s.generations[tenantID]++
	s.mu.Unlock()
}
