package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

// SnapshotSource serves a discovery snapshot loaded from a JSON or YAML file.
// It answers for every tenant.
type SnapshotSource struct {
	snapshot models.Snapshot
}

// LoadSnapshot reads path; files ending in .yaml or .yml are decoded as YAML.
func LoadSnapshot(path string) (*SnapshotSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap models.Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &snap)
	default:
		err = json.Unmarshal(data, &snap)
	}
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	for i := range snap.Nodes {
		snap.Nodes[i].ResourceType = models.ParseResourceType(string(snap.Nodes[i].ResourceType))
	}
	return &SnapshotSource{snapshot: snap}, nil
}

// NewSnapshotSource wraps an in-memory snapshot.
func NewSnapshotSource(snap models.Snapshot) *SnapshotSource {
	return &SnapshotSource{snapshot: snap}
}

// FetchResources returns the snapshot's nodes.
func (s *SnapshotSource) FetchResources(ctx context.Context, _ string) ([]models.ServiceNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]models.ServiceNode(nil), s.snapshot.Nodes...), nil
}

// FetchEnrichment returns the snapshot's enrichment.
func (s *SnapshotSource) FetchEnrichment(ctx context.Context, _ string) (models.Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return models.Enrichment{}, err
	}
	return s.snapshot.Enrichment, nil
}
