package payment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/storefront/server/internal/module/payment/provider"
)

// ProviderRegistry manages the payment providers available to checkout.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry(providers ...provider.Provider) *ProviderRegistry {
	r := &ProviderRegistry{providers: make(map[string]provider.Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register registers a provider, replacing any provider with the same name.
func (r *ProviderRegistry) Register(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *ProviderRegistry) Get(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// Has reports whether name is registered.
func (r *ProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// List returns all registered provider names, sorted.
func (r *ProviderRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configs returns the descriptors of all registered providers, sorted by name.
func (r *ProviderRegistry) Configs() []provider.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	configs := make([]provider.Config, 0, len(r.providers))
	for _, p := range r.providers {
		configs = append(configs, p.Config())
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Name < configs[j].Name
	})
	return configs
}
