package inference

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

var (
	consumerTypes = map[models.ResourceType]struct{}{
		models.ResourceVM:                {},
		models.ResourceServerless:        {},
		models.ResourceKubernetesCluster: {},
	}
	backendTypes = map[models.ResourceType]struct{}{
		models.ResourceDatabase:      {},
		models.ResourceCache:         {},
		models.ResourceMessageQueue:  {},
		models.ResourceSearchEngine:  {},
		models.ResourceStorageBucket: {},
		models.ResourceFilesystem:    {},
		models.ResourceSecretStore:   {},
	}
)

// AllowList holds the consumer -> backend type pairs that co-location alone may
// turn into a dependency edge.
type AllowList struct {
	pairs map[models.ResourceType]map[models.ResourceType]struct{}
}

// AllowPattern is one consumer type and the backend types it may depend on.
type AllowPattern struct {
	Consumer string   `yaml:"consumer"`
	Backends []string `yaml:"backends"`
}

// AllowListFile is the YAML root structure.
type AllowListFile struct {
	Patterns []AllowPattern `yaml:"patterns"`
}

// DefaultAllowList returns the built-in dependency patterns.
func DefaultAllowList() *AllowList {
	list, _ := newAllowList([]AllowPattern{
		{Consumer: "vm", Backends: []string{"database", "cache", "message_queue", "search_engine", "storage_bucket", "filesystem", "secret_store"}},
		{Consumer: "kubernetes_cluster", Backends: []string{"database", "cache", "message_queue", "search_engine", "storage_bucket", "filesystem", "secret_store"}},
		{Consumer: "serverless_function", Backends: []string{"database", "cache", "message_queue", "search_engine", "storage_bucket", "secret_store"}},
	})
	return list
}

// LoadAllowList reads patterns from path. An empty path or a missing file yields the defaults.
func LoadAllowList(path string, logger *slog.Logger) (*AllowList, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultAllowList(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("allow-list file not found, using defaults", slog.String("path", path))
			return DefaultAllowList(), nil
		}
		return nil, err
	}
	var file AllowListFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse allow-list: %w", err)
	}
	list, err := newAllowList(file.Patterns)
	if err != nil {
		return nil, fmt.Errorf("allow-list %s: %w", path, err)
	}
	logger.Info("loaded network allow-list", slog.String("path", path), slog.Int("pairs", list.Len()))
	return list, nil
}

func newAllowList(patterns []AllowPattern) (*AllowList, error) {
	list := &AllowList{pairs: make(map[models.ResourceType]map[models.ResourceType]struct{})}
	for _, p := range patterns {
		consumer := models.ResourceType(p.Consumer)
		if _, ok := consumerTypes[consumer]; !ok {
			return nil, fmt.Errorf("%q is not a consumer resource type", p.Consumer)
		}
		for _, b := range p.Backends {
			backend := models.ResourceType(b)
			if _, ok := backendTypes[backend]; !ok {
				return nil, fmt.Errorf("%q is not a backend resource type", b)
			}
			if list.pairs[consumer] == nil {
				list.pairs[consumer] = make(map[models.ResourceType]struct{})
			}
			list.pairs[consumer][backend] = struct{}{}
		}
	}
	return list, nil
}

// Allows reports whether consumer -> backend is a permitted pattern.
func (a *AllowList) Allows(consumer, backend models.ResourceType) bool {
	if a == nil || consumer == backend {
		return false
	}
	_, ok := a.pairs[consumer][backend]
	return ok
}

// Len returns the number of permitted pairs.
func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	n := 0
	for _, backends := range a.pairs {
		n += len(backends)
	}
	return n
}

// Pairs lists permitted pairs as "consumer->backend", sorted.
func (a *AllowList) Pairs() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, a.Len())
	for consumer, backends := range a.pairs {
		for backend := range backends {
			out = append(out, string(consumer)+"->"+string(backend))
		}
	}
	sort.Strings(out)
	return out
}
