// Package graph persists discovered services and dependency edges into the
// service graph store.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/miradorstack/mirador-correlator/internal/metrics"
	"github.com/miradorstack/mirador-correlator/internal/models"
)

// DefaultBatchSize is the number of rows sent per upsert call.
const DefaultBatchSize = 500

// Write kinds reported to metrics.
const (
	KindServices     = "services"
	KindEdges        = "edges"
	KindEdgesDropped = "edges_dropped"
)

// Store is the write side of the service graph. Upserts are idempotent:
// services are keyed by name, edges by (from, to).
type Store interface {
	BatchUpsertServices(ctx context.Context, tenantID string, services []models.ServiceNode) (int, error)
	BatchUpsertDependencies(ctx context.Context, tenantID string, edges []models.DependencyEdge) (int, error)
}

// Writer validates and batches graph writes.
type Writer struct {
	store     Store
	batchSize int
	logger    *slog.Logger
}

// NewWriter constructs a Writer. batchSize <= 0 uses DefaultBatchSize.
func NewWriter(store Store, batchSize int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{store: store, batchSize: batchSize, logger: logger}
}

// WriteServices upserts nodes with a non-empty name. Repeated names keep the
// last occurrence.
func (w *Writer) WriteServices(ctx context.Context, tenantID string, services []models.ServiceNode) (int, error) {
	if w.store == nil {
		return 0, fmt.Errorf("graph store not configured")
	}
	valid := make([]models.ServiceNode, 0, len(services))
	position := make(map[string]int, len(services))
	for _, svc := range services {
		svc.Name = strings.TrimSpace(svc.Name)
		if svc.Name == "" {
			continue
		}
		if svc.ResourceType == "" {
			svc.ResourceType = models.ResourceUnknown
		}
		if i, ok := position[svc.Name]; ok {
			valid[i] = svc
			continue
		}
		position[svc.Name] = len(valid)
		valid = append(valid, svc)
	}

	written := 0
	for start := 0; start < len(valid); start += w.batchSize {
		end := min(start+w.batchSize, len(valid))
		n, err := w.store.BatchUpsertServices(ctx, tenantID, valid[start:end])
		written += n
		if err != nil {
			metrics.AddGraphWrites(KindServices, written)
			return written, fmt.Errorf("upsert services batch %d-%d: %w", start, end, err)
		}
	}
	metrics.AddGraphWrites(KindServices, written)
	return written, nil
}

// WriteDependencies upserts valid edges. Edges with an empty endpoint, a self
// loop or a NaN confidence are dropped and counted.
func (w *Writer) WriteDependencies(ctx context.Context, tenantID string, edges []models.DependencyEdge) (int, error) {
	if w.store == nil {
		return 0, fmt.Errorf("graph store not configured")
	}
	valid := make([]models.DependencyEdge, 0, len(edges))
	dropped := 0
	for _, edge := range edges {
		if !Valid(edge) {
			dropped++
			continue
		}
		valid = append(valid, edge)
	}
	if dropped > 0 {
		metrics.AddGraphWrites(KindEdgesDropped, dropped)
		w.logger.Warn("dropped invalid dependency edges",
			slog.String("tenant_id", tenantID),
			slog.Int("dropped", dropped),
		)
	}

	written := 0
	for start := 0; start < len(valid); start += w.batchSize {
		end := min(start+w.batchSize, len(valid))
		n, err := w.store.BatchUpsertDependencies(ctx, tenantID, valid[start:end])
		written += n
		if err != nil {
			metrics.AddGraphWrites(KindEdges, written)
			return written, fmt.Errorf("upsert dependencies batch %d-%d: %w", start, end, err)
		}
	}
	metrics.AddGraphWrites(KindEdges, written)
	return written, nil
}

// Valid reports whether an edge may be persisted.
func Valid(edge models.DependencyEdge) bool {
	from := strings.TrimSpace(edge.FromService)
	to := strings.TrimSpace(edge.ToService)
	if from == "" || to == "" || from == to {
		return false
	}
	return !math.IsNaN(edge.Confidence) && edge.Confidence >= 0 && edge.Confidence <= 1
}
