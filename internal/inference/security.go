package inference

import (
	"context"
	"strings"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const (
	securityGroupConfidence = 0.75
	iamConfidence           = 0.7
	secretStoreConfidence   = 0.85
)

// SecurityGroupStrategy turns "group B accepts traffic from group A" into
// edges from A's members to B's members.
type SecurityGroupStrategy struct{}

// Name implements Strategy.
func (SecurityGroupStrategy) Name() string { return SourceSecurityGroup }

// Infer implements Strategy.
func (SecurityGroupStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	members := make(map[string][]models.ServiceNode, len(enrichment.SecurityGroups))
	for _, group := range enrichment.SecurityGroups {
		for _, ref := range group.Members {
			if node, ok := idx.Resolve(ref); ok {
				members[group.ID] = append(members[group.ID], node)
			}
		}
	}

	out := newEdgeSet()
	for _, group := range enrichment.SecurityGroups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, rule := range group.Ingress {
			// Self-referencing rules ("allow within group") say nothing about direction.
			if rule.SourceGroupID == "" || rule.SourceGroupID == group.ID {
				continue
			}
			for _, src := range members[rule.SourceGroupID] {
				for _, dst := range members[group.ID] {
					out.add(propose(src, dst, dependencyTypeFor(dst.ResourceType), securityGroupConfidence, SourceSecurityGroup))
				}
			}
		}
	}
	return out.result(), nil
}

// IAMStrategy links principals to the resources their policies grant access to.
type IAMStrategy struct{}

// Name implements Strategy.
func (IAMStrategy) Name() string { return SourceIAMPolicy }

// Infer implements Strategy.
func (IAMStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	out := newEdgeSet()
	for _, binding := range enrichment.IAMBindings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		principal, ok := idx.Resolve(binding.Principal)
		if !ok {
			continue
		}
		for _, ref := range binding.Resources {
			ref = strings.TrimSuffix(strings.TrimSuffix(ref, "*"), "/")
			if ref == "" {
				continue
			}
			target, ok := idx.Resolve(ref)
			if !ok {
				continue
			}
			out.add(propose(principal, target, iamDependencyType(target.ResourceType, binding.Actions), iamConfidence, SourceIAMPolicy))
		}
	}
	return out.result(), nil
}

var writeVerbs = []string{"put", "write", "send", "publish", "delete", "update", "create", "insert", "upload"}

func iamDependencyType(target models.ResourceType, actions []string) models.DependencyType {
	if target == models.ResourceSecretStore {
		return models.DependencyUsesSecret
	}
	writes := false
	for _, action := range actions {
		verb := strings.ToLower(action)
		if i := strings.LastIndexAny(verb, ":."); i >= 0 {
			verb = verb[i+1:]
		}
		for _, w := range writeVerbs {
			if strings.HasPrefix(verb, w) {
				writes = true
			}
		}
	}
	switch {
	case writes && target == models.ResourceMessageQueue:
		return models.DependencyPublishesTo
	case writes:
		return models.DependencyWritesTo
	case target == models.ResourceMessageQueue:
		return models.DependencyConsumesFrom
	case len(actions) > 0:
		return models.DependencyReadsFrom
	default:
		return dependencyTypeFor(target)
	}
}

// SecretStoreStrategy links workloads to the secret stores they read from.
type SecretStoreStrategy struct{}

// Name implements Strategy.
func (SecretStoreStrategy) Name() string { return SourceSecretStore }

// Infer implements Strategy.
func (SecretStoreStrategy) Infer(ctx context.Context, _ string, nodes []models.ServiceNode, enrichment models.Enrichment) ([]models.DependencyEdge, error) {
	idx := NewNodeIndex(nodes)
	out := newEdgeSet()
	for _, access := range enrichment.SecretAccess {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		consumer, ok := idx.Resolve(access.Consumer)
		if !ok {
			continue
		}
		store, ok := idx.Resolve(access.Store)
		if !ok {
			continue
		}
		out.add(propose(consumer, store, models.DependencyUsesSecret, secretStoreConfidence, SourceSecretStore))
	}
	return out.result(), nil
}
