package correlation

import (
	"context"
	"strings"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const (
	titleWeight   = 0.7
	serviceWeight = 0.3
)

// Similarity blends title similarity (embeddings, falling back to token
// Jaccard) with service-name similarity.
type Similarity struct {
	embedder EmbeddingProvider
}

// NewSimilarity constructs a Similarity strategy. A nil embedder always uses
// the token fallback.
func NewSimilarity(embedder EmbeddingProvider) *Similarity {
	return &Similarity{embedder: embedder}
}

// Name implements Strategy.
func (s *Similarity) Name() string { return StrategySimilarity }

// Score implements Strategy.
func (s *Similarity) Score(ctx context.Context, _ string, alert models.Alert, incident models.Incident) (float64, error) {
	if strings.TrimSpace(alert.Title) == "" || strings.TrimSpace(incident.Title) == "" {
		return 0, nil
	}
	title := s.TitleSimilarity(ctx, alert.Title, incident.Title)
	service := ServiceSimilarity(alert.Service, incident.Services)
	return clamp01(titleWeight*title + serviceWeight*service), nil
}

// TitleSimilarity compares two titles by embedding cosine when both vectors are
// available, otherwise by token Jaccard.
func (s *Similarity) TitleSimilarity(ctx context.Context, a, b string) float64 {
	if s.embedder != nil {
		if va := s.embedder.Embed(ctx, a); va != nil {
			if vb := s.embedder.Embed(ctx, b); vb != nil && len(va) == len(vb) {
				return Cosine(va, vb)
			}
		}
	}
	return Jaccard(Tokenize(a), Tokenize(b))
}

// ServiceSimilarity is 1 on an exact match against any incident service,
// otherwise the best token Jaccard against a single incident service.
func ServiceSimilarity(service string, incidentServices []string) float64 {
	if service == "" || len(incidentServices) == 0 {
		return 0
	}
	tokens := Tokenize(service)
	best := 0.0
	for _, candidate := range incidentServices {
		if candidate == service {
			return 1
		}
		if score := Jaccard(tokens, Tokenize(candidate)); score > best {
			best = score
		}
	}
	return best
}
