package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/esdiag/dispatch"
	"github.com/randalmurphal/esdiag/fetch"
	"github.com/randalmurphal/esdiag/prompt"
	"github.com/randalmurphal/esdiag/provider"
	"github.com/randalmurphal/esdiag/session"
)

// EnvPath names the environment variable consulted when no --config flag
// is given.
const EnvPath = "ESDIAG_CONFIG"

// DefaultSeedBudget is the character budget shared by the stats sources.
const DefaultSeedBudget = 20000

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the full server configuration.
type Config struct {
	Listen   string                   `yaml:"listen" toml:"listen"`
	Engine   provider.Config          `yaml:"engine" toml:"engine"`
	History  History                  `yaml:"history" toml:"history"`
	Seed     Seed                     `yaml:"seed" toml:"seed"`
	Fetch    Fetch                    `yaml:"fetch" toml:"fetch"`
	Policy   Policy                   `yaml:"policy" toml:"policy"`
	Clusters map[string]fetch.Cluster `yaml:"clusters" toml:"clusters"`
	Prompts  prompt.Set               `yaml:"prompts" toml:"prompts"`
}

// History bounds each session's conversation.
type History struct {
	// TokenBudget is the most tokens a request's history may use.
	TokenBudget int `yaml:"token_budget" toml:"token_budget"`
	// PayloadCap is the most characters of a fetched payload shown to the engine.
	PayloadCap int `yaml:"payload_cap" toml:"payload_cap"`
	// IdleTTL drops sessions unused for this long. 0 keeps them forever.
	IdleTTL time.Duration `yaml:"idle_ttl" toml:"idle_ttl"`
}

// Seed configures the stats seed.
type Seed struct {
	TotalBudget int      `yaml:"total_budget" toml:"total_budget"`
	Endpoints   []string `yaml:"endpoints" toml:"endpoints"`
}

// Fetch configures cluster reads.
type Fetch struct {
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// Policy lists what the engine may not fetch. Empty lists use the defaults.
type Policy struct {
	DenyPatterns  []string `yaml:"deny_patterns" toml:"deny_patterns"`
	MutatingVerbs []string `yaml:"mutating_verbs" toml:"mutating_verbs"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen: ":8080",
		Engine: provider.DefaultConfig(),
		History: History{
			TokenBudget: session.DefaultTokenBudget,
			PayloadCap:  dispatch.DefaultPayloadCap,
		},
		Seed: Seed{
			TotalBudget: DefaultSeedBudget,
		},
		Fetch: Fetch{
			Timeout: fetch.DefaultTimeout,
		},
		Clusters: map[string]fetch.Cluster{},
		Prompts:  prompt.Default(),
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path falls back to $ESDIAG_CONFIG; with neither, only defaults
// and environment are used.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.Prompts = cfg.Prompts.WithDefaults()
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

// LoadFromEnv applies ESDIAG_* overrides. Engine variables are handled by
// provider.Config.LoadFromEnv.
//
// Supported variables:
//   - ESDIAG_LISTEN: listen address
//   - ESDIAG_HISTORY_TOKEN_BUDGET: history token budget
//   - ESDIAG_HISTORY_PAYLOAD_CAP: fetched payload character cap
//   - ESDIAG_SEED_TOTAL_BUDGET: stats seed character budget
//   - ESDIAG_FETCH_TIMEOUT: cluster read timeout (e.g. "10s")
//   - ESDIAG_CLUSTER_<ID>_PASSWORD / ESDIAG_CLUSTER_<ID>_API_KEY: cluster credentials
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("ESDIAG_LISTEN"); v != "" {
		c.Listen = v
	}
	envInt("ESDIAG_HISTORY_TOKEN_BUDGET", &c.History.TokenBudget)
	envInt("ESDIAG_HISTORY_PAYLOAD_CAP", &c.History.PayloadCap)
	envInt("ESDIAG_SEED_TOTAL_BUDGET", &c.Seed.TotalBudget)
	if v := os.Getenv("ESDIAG_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Fetch.Timeout = d
		}
	}
	for id, cl := range c.Clusters {
		prefix := "ESDIAG_CLUSTER_" + envName(id) + "_"
		if v := os.Getenv(prefix + "PASSWORD"); v != "" {
			cl.Password = v
		}
		if v := os.Getenv(prefix + "API_KEY"); v != "" {
			cl.APIKey = v
		}
		c.Clusters[id] = cl
	}
	c.Engine.LoadFromEnv()
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// envName upper-cases id and replaces anything outside [A-Z0-9] with '_'.
func envName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, id)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.History.TokenBudget <= 0 {
		return fmt.Errorf("history.token_budget must be > 0, got %d", c.History.TokenBudget)
	}
	if c.History.PayloadCap <= 0 {
		return fmt.Errorf("history.payload_cap must be > 0, got %d", c.History.PayloadCap)
	}
	if c.History.IdleTTL < 0 {
		return fmt.Errorf("history.idle_ttl must be >= 0, got %v", c.History.IdleTTL)
	}
	if c.Seed.TotalBudget <= 0 {
		return fmt.Errorf("seed.total_budget must be > 0, got %d", c.Seed.TotalBudget)
	}
	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch.timeout must be >= 0, got %v", c.Fetch.Timeout)
	}
	if _, err := c.BuildPolicy(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	for _, id := range c.ClusterIDs() {
		u, err := url.Parse(c.Clusters[id].URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("clusters.%s: url must be absolute, got %q", id, c.Clusters[id].URL)
		}
	}
	if _, err := c.Prompts.Compile(); err != nil {
		return fmt.Errorf("prompts: %w", err)
	}
	return nil
}

// BuildPolicy compiles the endpoint policy, using the defaults for empty lists.
func (c *Config) BuildPolicy() (*fetch.Policy, error) {
	patterns := c.Policy.DenyPatterns
	if len(patterns) == 0 {
		patterns = fetch.DefaultDenyPatterns
	}
	verbs := c.Policy.MutatingVerbs
	if len(verbs) == 0 {
		verbs = fetch.DefaultMutatingVerbs
	}
	return fetch.NewPolicy(patterns, verbs)
}

// ClusterIDs returns the configured cluster ids, sorted.
func (c *Config) ClusterIDs() []string {
	ids := make([]string, 0, len(c.Clusters))
	for id := range c.Clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
