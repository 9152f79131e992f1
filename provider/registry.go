package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a Client for one reasoning-engine backend.
type Factory func(cfg Config) (Client, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a backend available to New under name. Backends register
// from init, so a duplicate name is a programming error and panics:
//
//	func init() {
//	    provider.Register("groq", func(cfg provider.Config) (provider.Client, error) {
//	        return NewClient(cfg, WithName("groq"), withDefaultBaseURL(GroqBaseURL))
//	    })
//	}
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("provider: %q registered twice", name))
	}
	factories[name] = factory
}

// New validates cfg and builds the Client registered as name. cfg.Provider
// is set to name before validation.
func New(name string, cfg Config) (Client, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, name, strings.Join(Available(), ", "))
	}

	cfg.Provider = name
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return factory(cfg)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
