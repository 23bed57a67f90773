package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-correlator/internal/cache"
)

// OpenAIEmbeddingsConfig configures the embedding provider.
type OpenAIEmbeddingsConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	CacheTTL time.Duration
	// RatePerSecond limits outbound calls; <= 0 disables throttling.
	RatePerSecond float64
	Burst         int
}

// OpenAIEmbeddings implements the correlation EmbeddingProvider with the
// OpenAI embeddings API. Every failure degrades to "no embedding".
type OpenAIEmbeddings struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	cache    cache.Provider
	cacheTTL time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewOpenAIEmbeddings constructs the provider.
func NewOpenAIEmbeddings(cfg OpenAIEmbeddingsConfig, cacheProvider cache.Provider, logger *slog.Logger) *OpenAIEmbeddings {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &OpenAIEmbeddings{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		cache:    cacheProvider,
		cacheTTL: cfg.CacheTTL,
		limiter:  limiter,
		logger:   logger,
	}
}

// Embed returns the embedding vector for text, or nil when unavailable.
func (e *OpenAIEmbeddings) Embed(ctx context.Context, text string) []float32 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	key := e.cacheKey(text)
	var cached []float32
	if cache.GetJSON(ctx, e.cache, key, &cached) == nil && len(cached) > 0 {
		return cached
	}

	if err := e.limiter.Wait(ctx); err != nil {
		e.logger.Debug("embedding rate limit wait aborted", slog.Any("error", err))
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		e.logger.Warn("embedding request failed", slog.String("model", e.model), slog.Any("error", err))
		return nil
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		e.logger.Warn("embedding response was empty", slog.String("model", e.model))
		return nil
	}

	vec := resp.Data[0].Embedding
	_ = cache.SetJSON(ctx, e.cache, key, vec, e.cacheTTL)
	return vec
}

func (e *OpenAIEmbeddings) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return "embedding:" + hex.EncodeToString(sum[:])
}

// NoopEmbeddings never produces vectors, forcing the lexical fallback.
type NoopEmbeddings struct{}

// Embed always returns nil.
func (NoopEmbeddings) Embed(context.Context, string) []float32 { return nil }
