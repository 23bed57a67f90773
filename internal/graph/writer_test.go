package graph

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

type countingStore struct {
	*MemoryStore
	serviceBatches []int
	edgeBatches    []int
	failAfter      int
}

func (c *countingStore) BatchUpsertServices(ctx context.Context, tenantID string, services []models.ServiceNode) (int, error) {
	c.serviceBatches = append(c.serviceBatches, len(services))
	return c.MemoryStore.BatchUpsertServices(ctx, tenantID, services)
}

func (c *countingStore) BatchUpsertDependencies(ctx context.Context, tenantID string, edges []models.DependencyEdge) (int, error) {
	if c.failAfter > 0 && len(c.edgeBatches) >= c.failAfter {
		return 0, errors.New("connection reset")
	}
	c.edgeBatches = append(c.edgeBatches, len(edges))
	return c.MemoryStore.BatchUpsertDependencies(ctx, tenantID, edges)
}

func TestWriteServicesBatchesAndDedupes(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	w := NewWriter(store, 2, nil)

	n, err := w.WriteServices(context.Background(), "t1", []models.ServiceNode{
		{Name: "api", ResourceType: models.ResourceVM},
		{Name: "  "},
		{Name: "db", ResourceType: models.ResourceDatabase},
		{Name: "cache"},
		{Name: "api", ResourceType: models.ResourceKubernetesCluster},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{2, 1}, store.serviceBatches)

	services := store.Services("t1")
	require.Len(t, services, 3)
	assert.Equal(t, models.ResourceKubernetesCluster, services[0].ResourceType, "last write wins")
	assert.Equal(t, models.ResourceUnknown, services[1].ResourceType)
}

func TestWriteDependenciesDropsInvalidEdges(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	w := NewWriter(store, 0, nil)

	n, err := w.WriteDependencies(context.Background(), "t1", []models.DependencyEdge{
		{FromService: "api", ToService: "db", DependencyType: models.DependencyConnectsTo, Confidence: 0.9},
		{FromService: "api", ToService: "api", Confidence: 0.9},
		{FromService: "", ToService: "db", Confidence: 0.9},
		{FromService: "api", ToService: "cache", Confidence: math.NaN()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, store.Dependencies("t1"), 1)
	assert.Len(t, store.Services("t1"), 2, "edge endpoints are created on demand")
}

func TestWriteDependenciesReportsPartialProgress(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore(), failAfter: 1}
	w := NewWriter(store, 1, nil)

	n, err := w.WriteDependencies(context.Background(), "t1", []models.DependencyEdge{
		{FromService: "a", ToService: "b", Confidence: 0.5},
		{FromService: "b", ToService: "c", Confidence: 0.5},
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestWriterRequiresStore(t *testing.T) {
	_, err := NewWriter(nil, 10, nil).WriteServices(context.Background(), "t1", nil)
	assert.Error(t, err)
}

func TestMemoryStoreTraversal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.BatchUpsertDependencies(ctx, "t1", []models.DependencyEdge{
		{FromService: "web", ToService: "api", Confidence: 0.9},
		{FromService: "api", ToService: "db", Confidence: 0.9},
		{FromService: "api", ToService: "cache", Confidence: 0.9},
		{FromService: "db", ToService: "storage", Confidence: 0.9},
		{FromService: "storage", ToService: "web", Confidence: 0.9},
	})
	require.NoError(t, err)

	up, err := store.GetAllUpstream(ctx, "t1", "api", 2)
	require.NoError(t, err)
	assert.Equal(t, []models.PathNode{{Name: "cache", Depth: 1}, {Name: "db", Depth: 1}, {Name: "storage", Depth: 2}}, up)

	down, err := store.GetAllDownstream(ctx, "t1", "api", 3)
	require.NoError(t, err)
	assert.Equal(t, []models.PathNode{{Name: "web", Depth: 1}, {Name: "storage", Depth: 2}, {Name: "db", Depth: 3}}, down)

	none, err := store.GetAllUpstream(ctx, "other", "api", 3)
	require.NoError(t, err)
	assert.Empty(t, none, "tenants are isolated")
}
