package inference

import (
	"context"
	"strings"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const (
	storageConfidence     = 0.8
	eventSourceConfidence = 0.95
)

// StorageStrategy links principals to the buckets and filesystems they were granted.
type StorageStrategy struct{}

// Name implements Strategy.
func (StorageStrategy) Name() string { return SourceStorageAccess }

// Infer implements Strategy.
func (StorageStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	out := newEdgeSet()
	for _, grant := range enrichment.StorageGrants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		principal, ok := idx.Resolve(grant.Principal)
		if !ok {
			continue
		}
		target, ok := idx.Resolve(grant.Resource)
		if !ok {
			continue
		}
		switch target.ResourceType {
		case models.ResourceStorageBucket, models.ResourceFilesystem, models.ResourceUnknown, "":
		default:
			continue
		}
		depType := models.DependencyReadsFrom
		switch strings.ToLower(strings.TrimSpace(grant.Mode)) {
		case "write", "read_write", "readwrite", "rw":
			depType = models.DependencyWritesTo
		}
		out.add(propose(principal, target, depType, storageConfidence, SourceStorageAccess))
	}
	return out.result(), nil
}

// EventSourceStrategy links functions to the queues and streams that trigger them.
type EventSourceStrategy struct{}

// Name implements Strategy.
func (EventSourceStrategy) Name() string { return SourceEventSource }

// Infer implements Strategy.
func (EventSourceStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	out := newEdgeSet()
	for _, mapping := range enrichment.EventSources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if mapping.Enabled != nil && !*mapping.Enabled {
			continue
		}
		function, ok := idx.Resolve(mapping.Function)
		if !ok {
			continue
		}
		source, ok := idx.Resolve(mapping.Source)
		if !ok {
			continue
		}
		out.add(propose(function, source, models.DependencyConsumesFrom, eventSourceConfidence, SourceEventSource))
	}
	return out.result(), nil
}
