package inference

import (
	"net"
	"net/url"
	"strings"

	"github.com/miradorstack/mirador-correlator/internal/models"
)

const minCloudIDPrefix = 8

// NodeIndex resolves resource references (names, cloud ids, endpoints, URLs)
// to discovered nodes. It is read-only once built.
type NodeIndex struct {
	nodes   []models.ServiceNode
	byName  map[string]int
	byLower map[string]int
	byCloud map[string]int
	byHost  map[string]int
}

// NewNodeIndex indexes nodes. Later duplicates of a name or id do not override earlier ones.
func NewNodeIndex(nodes []models.ServiceNode) *NodeIndex {
	idx := &NodeIndex{
		nodes:   nodes,
		byName:  make(map[string]int, len(nodes)),
		byLower: make(map[string]int, len(nodes)),
		byCloud: make(map[string]int),
		byHost:  make(map[string]int),
	}
	for i, node := range nodes {
		if node.Name == "" {
			continue
		}
		putFirst(idx.byName, node.Name, i)
		putFirst(idx.byLower, strings.ToLower(node.Name), i)
		if node.CloudResourceID != "" {
			putFirst(idx.byCloud, node.CloudResourceID, i)
		}
		if host := hostOf(node.Endpoint); host != "" {
			putFirst(idx.byHost, host, i)
		}
	}
	return idx
}

func putFirst(m map[string]int, key string, i int) {
	if _, ok := m[key]; !ok {
		m[key] = i
	}
}

// Len returns the number of indexed nodes.
func (x *NodeIndex) Len() int { return len(x.nodes) }

// Resolve finds the node a reference points to.
func (x *NodeIndex) Resolve(ref string) (models.ServiceNode, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.ServiceNode{}, false
	}
	if i, ok := x.byName[ref]; ok {
		return x.nodes[i], true
	}
	if i, ok := x.byCloud[ref]; ok {
		return x.nodes[i], true
	}
	if i, ok := x.byLower[strings.ToLower(ref)]; ok {
		return x.nodes[i], true
	}
	if host := hostOf(ref); host != "" {
		if i, ok := x.byHost[host]; ok {
			return x.nodes[i], true
		}
	}
	if i, ok := x.byCloudPrefix(ref); ok {
		return x.nodes[i], true
	}
	if tail := lastSegment(ref); tail != "" && tail != ref {
		if i, ok := x.byLower[strings.ToLower(tail)]; ok {
			return x.nodes[i], true
		}
	}
	return models.ServiceNode{}, false
}

// byCloudPrefix matches refs such as "arn:...:table/orders/index/x" or
// "arn:...:secret:db-AbC" against the longest cloud id they extend.
func (x *NodeIndex) byCloudPrefix(ref string) (int, bool) {
	best, bestLen := -1, 0
	for id, i := range x.byCloud {
		if len(id) < minCloudIDPrefix || len(id) >= len(ref) || !strings.HasPrefix(ref, id) {
			continue
		}
		switch ref[len(id)] {
		case ':', '/', '-':
		default:
			continue
		}
		if len(id) > bestLen || (len(id) == bestLen && i < best) {
			best, bestLen = i, len(id)
		}
	}
	return best, best >= 0
}

// hostOf extracts a lower-cased host from a URL, host:port or bare hostname.
func hostOf(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err != nil {
			return ""
		}
		return normaliseHost(u.Hostname())
	}
	if strings.HasPrefix(value, "arn:") {
		return ""
	}
	if i := strings.IndexAny(value, "/?"); i >= 0 {
		value = value[:i]
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	if strings.ContainsAny(value, " :=@") {
		return ""
	}
	return normaliseHost(value)
}

func normaliseHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

func lastSegment(ref string) string {
	i := strings.LastIndexAny(ref, "/:")
	if i < 0 || i == len(ref)-1 {
		return ""
	}
	return ref[i+1:]
}
