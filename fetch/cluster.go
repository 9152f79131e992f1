package fetch

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
)

// Cluster is the connection information for one Elasticsearch cluster.
type Cluster struct {
	URL      string `json:"url" yaml:"url" toml:"url"`
	Username string `json:"username,omitempty" yaml:"username" toml:"username"`
	Password string `json:"-" yaml:"password" toml:"password"`
	APIKey   string `json:"-" yaml:"api_key" toml:"api_key"`
}

// Registry maps cluster ids to clients. The whole map is swapped on Set,
// so a config reload never leaves a half-updated registry.
type Registry struct {
	mu        sync.RWMutex
	clusters  map[string]Cluster
	clients   map[string]*elasticsearch.Client
	transport http.RoundTripper
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTransport sets the HTTP transport used by every cluster client.
func WithTransport(rt http.RoundTripper) RegistryOption {
	return func(r *Registry) {
		r.transport = rt
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clusters: map[string]Cluster{},
		clients:  map[string]*elasticsearch.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Set replaces all registered clusters. Clients are built before the swap;
// if any cluster is invalid nothing changes.
func (r *Registry) Set(clusters map[string]Cluster) error {
	clients := make(map[string]*elasticsearch.Client, len(clusters))
	copied := make(map[string]Cluster, len(clusters))
	for id, c := range clusters {
		client, err := r.newClient(c)
		if err != nil {
			return fmt.Errorf("cluster %q: %w", id, err)
		}
		clients[id] = client
		copied[id] = c
	}

	r.mu.Lock()
	r.clusters = copied
	r.clients = clients
	r.mu.Unlock()
	return nil
}

func (r *Registry) newClient(c Cluster) (*elasticsearch.Client, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{c.URL},
		Username:  c.Username,
		Password:  c.Password,
		APIKey:    c.APIKey,
		Transport: r.transport,
		// The dispatch protocol never retries; a failed read is reported.
		DisableRetry: true,
	})
}

// Client returns the client for a cluster id.
func (r *Registry) Client(id string) (*elasticsearch.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Cluster returns the connection info for a cluster id.
func (r *Registry) Cluster(id string) (Cluster, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clusters[id]
	return c, ok
}

// IDs returns the registered cluster ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clusters))
	for id := range r.clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
