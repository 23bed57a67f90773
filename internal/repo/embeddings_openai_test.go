package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miradorstack/mirador-correlator/internal/cache"
)

func newEmbeddingServer(t *testing.T, status int, vector []float32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vector}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAIEmbeddingsCachesVectors(t *testing.T) {
	srv, calls := newEmbeddingServer(t, http.StatusOK, []float32{0.1, 0.2, 0.3})
	emb := NewOpenAIEmbeddings(OpenAIEmbeddingsConfig{
		APIKey:   "test",
		BaseURL:  srv.URL + "/v1",
		Timeout:  time.Second,
		CacheTTL: time.Minute,
	}, cache.NewMemoryProvider(), nil)

	ctx := context.Background()
	vec := emb.Embed(ctx, "database connection timeout")
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if again := emb.Embed(ctx, "database connection timeout"); len(again) != 3 {
		t.Fatalf("unexpected cached vector %v", again)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
}

func TestOpenAIEmbeddingsDegradesToNil(t *testing.T) {
	srv, _ := newEmbeddingServer(t, http.StatusServiceUnavailable, nil)
	emb := NewOpenAIEmbeddings(OpenAIEmbeddingsConfig{APIKey: "test", BaseURL: srv.URL + "/v1", Timeout: time.Second}, nil, nil)
	if vec := emb.Embed(context.Background(), "anything"); vec != nil {
		t.Fatalf("expected nil vector on failure, got %v", vec)
	}
	if vec := emb.Embed(context.Background(), "   "); vec != nil {
		t.Fatalf("expected nil vector for blank text, got %v", vec)
	}
}

func TestOpenAIEmbeddingsRateLimitHonoursContext(t *testing.T) {
	srv, calls := newEmbeddingServer(t, http.StatusOK, []float32{1})
	emb := NewOpenAIEmbeddings(OpenAIEmbeddingsConfig{
		APIKey:        "test",
		BaseURL:       srv.URL + "/v1",
		RatePerSecond: 0.001,
		Burst:         1,
	}, nil, nil)

	if vec := emb.Embed(context.Background(), "first"); len(vec) != 1 {
		t.Fatalf("first call should pass the limiter, got %v", vec)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if vec := emb.Embed(ctx, "second"); vec != nil {
		t.Fatalf("throttled call should give up with the context, got %v", vec)
	}
	if got := atomic.LoadInt32(calls); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
}

func TestNoopEmbeddings(t *testing.T) {
	if (NoopEmbeddings{}).Embed(context.Background(), "x") != nil {
		t.Fatal("noop embeddings must return nil")
	}
}
