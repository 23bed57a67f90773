package correlation

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

type fakeGraph struct {
	upstream   []models.PathNode
	downstream []models.PathNode
	err        error
	calls      int
}

func (f *fakeGraph) GetAllUpstream(ctx context.Context, tenantID, service string, maxDepth int) ([]models.PathNode, error) {
	f.calls++
	return f.upstream, f.err
}

func (f *fakeGraph) GetAllDownstream(ctx context.Context, tenantID, service string, maxDepth int) ([]models.PathNode, error) {
	f.calls++
	return f.downstream, f.err
}

type mapEmbedder map[string][]float32

func (m mapEmbedder) Embed(_ context.Context, text string) []float32 {
	return m[text]
}

func TestTimeWindowScoreGap(t *testing.T) {
	tw := NewTimeWindow(0)
	require.Equal(t, DefaultWindow, tw.Window())

	assert.Equal(t, 1.0, tw.ScoreGap(0))
	assert.InDelta(t, 0.5, tw.ScoreGap(150*time.Second), 1e-9)
	assert.Equal(t, 0.0, tw.ScoreGap(300*time.Second))
	assert.Equal(t, 0.0, tw.ScoreGap(time.Hour))
	assert.Equal(t, 0.0, tw.ScoreGap(-time.Second))
}

func TestTimeWindowScoreUsesIncidentUpdate(t *testing.T) {
	tw := NewTimeWindow(100 * time.Second)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	score, err := tw.Score(context.Background(), "tenant",
		models.Alert{ReceivedAt: now.Add(25 * time.Second)},
		models.Incident{UpdatedAt: now},
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, score, 1e-9)

	score, err = tw.Score(context.Background(), "tenant",
		models.Alert{ReceivedAt: now.Add(-time.Second)},
		models.Incident{UpdatedAt: now},
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestTopologyExactMatchShortCircuits(t *testing.T) {
	graph := &fakeGraph{err: errors.New("graph down")}
	strategy := NewTopology(graph, 3, nil)

	score, err := strategy.Score(context.Background(), "tenant",
		models.Alert{Service: "payments"},
		models.Incident{Services: []string{"checkout", "payments"}},
	)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
	assert.Zero(t, graph.calls)
}

func TestTopologyDepthWeights(t *testing.T) {
	graph := &fakeGraph{
		upstream: []models.PathNode{
			{Name: "db", Depth: 1},
			{Name: "cache", Depth: 2},
			{Name: "vault", Depth: 3},
			{Name: "cache", Depth: 3},
		},
		downstream: []models.PathNode{
			{Name: "frontend", Depth: 1},
			{Name: "mobile", Depth: 2},
			{Name: "partner", Depth: 3},
		},
	}
	strategy := NewTopology(graph, 3, nil)
	cases := map[string]float64{
		"db":        1.0,
		"cache":     0.7,
		"vault":     0.4,
		"frontend":  0.8,
		"mobile":    0.5,
		"partner":   0.2,
		"elsewhere": 0,
	}
	for service, want := range cases {
		score, err := strategy.Score(context.Background(), "tenant",
			models.Alert{Service: "payments"},
			models.Incident{Services: []string{service}},
		)
		require.NoError(t, err)
		assert.InDelta(t, want, score, 1e-9, service)
	}

	score, err := strategy.Score(context.Background(), "tenant",
		models.Alert{Service: "payments"},
		models.Incident{Services: []string{"partner", "cache", "mobile"}},
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, score, 1e-9)
}

func TestTopologyStoreFailureScoresZero(t *testing.T) {
	strategy := NewTopology(&fakeGraph{err: errors.New("timeout")}, 3, nil)
	score, err := strategy.Score(context.Background(), "tenant",
		models.Alert{Service: "payments"},
		models.Incident{Services: []string{"db"}},
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	score, err = NewTopology(nil, 0, nil).Score(context.Background(), "tenant",
		models.Alert{Service: "payments"},
		models.Incident{Services: []string{"db"}},
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestTokenizeDropsStopWordsAndShortTokens(t *testing.T) {
	tokens := Tokenize("The DB-01 is down: a x High CPU on payment_service")
	assert.Equal(t, map[string]struct{}{
		"db": {}, "01": {}, "down": {}, "high": {}, "cpu": {}, "payment": {}, "service": {},
	}, tokens)
}

func TestSimilarityIdenticalTitlesAndService(t *testing.T) {
	title := "High CPU usage on payment service"
	alert := models.Alert{Service: "payment-service", Title: title}
	incident := models.Incident{Services: []string{"payment-service"}, Title: title}

	score, err := NewSimilarity(nil).Score(context.Background(), "tenant", alert, incident)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	embedder := mapEmbedder{title: {0.3, 0.4, 0.5}}
	score, err = NewSimilarity(embedder).Score(context.Background(), "tenant", alert, incident)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)
}

func TestSimilarityEmptyTitleIsZero(t *testing.T) {
	s := NewSimilarity(nil)
	score, err := s.Score(context.Background(), "tenant",
		models.Alert{Service: "api", Title: ""},
		models.Incident{Services: []string{"api"}, Title: "api down"},
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	score, err = s.Score(context.Background(), "tenant",
		models.Alert{Service: "api", Title: "api down"},
		models.Incident{Services: []string{"api"}, Title: "   "},
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestSimilarityFallsBackWhenEmbeddingMissing(t *testing.T) {
	embedder := mapEmbedder{"disk full on db": {1, 0}}
	s := NewSimilarity(embedder)

	got := s.TitleSimilarity(context.Background(), "disk full on db", "db disk full")
	assert.InDelta(t, 1.0, got, 1e-9, "token sets are identical once stop words are dropped")

	opposite := mapEmbedder{"up": {1, 0}, "down": {-1, 0}}
	assert.Equal(t, 0.0, NewSimilarity(opposite).TitleSimilarity(context.Background(), "up", "down"))
}

func TestServiceSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, ServiceSimilarity("api", []string{"db", "api"}))
	assert.InDelta(t, 1.0/3.0, ServiceSimilarity("payment-api", []string{"payment-worker"}), 1e-9)
	assert.Equal(t, 0.0, ServiceSimilarity("", []string{"api"}))
	assert.Equal(t, 0.0, ServiceSimilarity("api", nil))
}

func TestStrategyScoresStayInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	words := []string{"cpu", "disk", "payment", "the", "db", "latency", "x", "api", "", "error"}
	randomText := func() string {
		n := rng.Intn(5)
		out := ""
		for i := 0; i < n; i++ {
			out += words[rng.Intn(len(words))] + " "
		}
		return out
	}
	graph := &fakeGraph{
		upstream:   []models.PathNode{{Name: "db", Depth: 1}, {Name: "api", Depth: 4}},
		downstream: []models.PathNode{{Name: "cpu", Depth: 2}},
	}
	strategies := []Strategy{NewTimeWindow(time.Minute), NewTopology(graph, 3, nil), NewSimilarity(nil)}
	base := time.Now()

	for i := 0; i < 500; i++ {
		alert := models.Alert{
			Service:    words[rng.Intn(len(words))],
			Title:      randomText(),
			ReceivedAt: base.Add(time.Duration(rng.Intn(240)-120) * time.Second),
		}
		incident := models.Incident{
			Services:  []string{words[rng.Intn(len(words))], words[rng.Intn(len(words))]},
			Title:     randomText(),
			UpdatedAt: base,
		}
		for _, s := range strategies {
			score, err := s.Score(context.Background(), "tenant", alert, incident)
			require.NoError(t, err)
			require.GreaterOrEqual(t, score, 0.0, s.Name())
			require.LessOrEqual(t, score, 1.0, s.Name())
		}
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}
