package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-correlator/internal/cache"
	"github.com/miradorstack/mirador-correlator/internal/models"
)

// DiscoveryClient fetches discovered cloud resources and their enrichment
// metadata from the discovery API.
type DiscoveryClient struct {
	baseURL        string
	resourcesPath  string
	enrichmentPath string
	httpClient     *http.Client
	cache          cache.Provider
	cacheTTL       time.Duration
}

// NewDiscoveryClient constructs a client. A nil cache disables response caching.
func NewDiscoveryClient(baseURL, resourcesPath, enrichmentPath string, timeout time.Duration, cacheProvider cache.Provider, cacheTTL time.Duration) *DiscoveryClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &DiscoveryClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		resourcesPath:  resourcesPath,
		enrichmentPath: enrichmentPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    cacheProvider,
		cacheTTL: cacheTTL,
	}
}

// FetchResources returns the tenant's discovered resources as graph nodes.
func (c *DiscoveryClient) FetchResources(ctx context.Context, tenantID string) ([]models.ServiceNode, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var response struct {
		Resources []struct {
			Name            string            `json:"name"`
			ResourceType    string            `json:"resource_type"`
			Provider        string            `json:"provider"`
			VPCID           string            `json:"vpc_id"`
			CloudResourceID string            `json:"cloud_resource_id"`
			Endpoint        string            `json:"endpoint"`
			Labels          map[string]string `json:"labels"`
		} `json:"resources"`
	}
	key := "discovery:resources:" + tenantID
	if err := c.cachedPost(ctx, key, c.resolvePath(c.resourcesPath), map[string]any{"tenant_id": tenantID}, &response); err != nil {
		return nil, fmt.Errorf("discovery resources request failed: %w", err)
	}

	nodes := make([]models.ServiceNode, 0, len(response.Resources))
	for _, r := range response.Resources {
		if strings.TrimSpace(r.Name) == "" {
			continue
		}
		nodes = append(nodes, models.ServiceNode{
			Name:            strings.TrimSpace(r.Name),
			ResourceType:    models.ParseResourceType(r.ResourceType),
			Provider:        strings.ToLower(r.Provider),
			VPCID:           r.VPCID,
			CloudResourceID: r.CloudResourceID,
			Endpoint:        r.Endpoint,
			Labels:          r.Labels,
		})
	}
	return nodes, nil
}

// FetchEnrichment returns the per-signal metadata used by inference.
func (c *DiscoveryClient) FetchEnrichment(ctx context.Context, tenantID string) (models.Enrichment, error) {
	if err := c.ready(); err != nil {
		return models.Enrichment{}, err
	}
	var enrichment models.Enrichment
	key := "discovery:enrichment:" + tenantID
	if err := c.cachedPost(ctx, key, c.resolvePath(c.enrichmentPath), map[string]any{"tenant_id": tenantID}, &enrichment); err != nil {
		return models.Enrichment{}, fmt.Errorf("discovery enrichment request failed: %w", err)
	}
	return enrichment, nil
}

func (c *DiscoveryClient) ready() error {
	if c == nil {
		return fmt.Errorf("discovery client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("discovery base URL not configured")
	}
	return nil
}

// cachedPost serves out from cache when possible and stores fresh responses.
// Cache failures only cost a network round trip.
func (c *DiscoveryClient) cachedPost(ctx context.Context, key, endpoint string, payload, out any) error {
	if c.cacheTTL > 0 && cache.GetJSON(ctx, c.cache, key, out) == nil {
		return nil
	}
	if err := c.postJSON(ctx, endpoint, payload, out); err != nil {
		return err
	}
	if c.cacheTTL > 0 {
		_ = cache.SetJSON(ctx, c.cache, key, out, c.cacheTTL)
	}
	return nil
}

func (c *DiscoveryClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *DiscoveryClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discovery API returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
