package embedding

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ferg-cod3s/fold/internal/ferrors"
)

// registry is the process-wide provider registry; the init() at the end of
// this file registers MockProvider, and other providers are added through
// Register so config can select one by name.
var registry = NewRegistry()

// Register adds a provider to the global registry.
func Register(provider Provider) error {
	return registry.Register(provider)
}

// Get retrieves a provider from the global registry by name.
func Get(name string) (Provider, error) {
	return registry.Get(name)
}

// List returns all provider names registered globally.
func List() []string {
	return registry.List()
}

// Registry is a thread-safe, name-keyed set of embedding Providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider, failing if one with the same name already
// exists (spec.md §6.4 treats provider names as a project-wide namespace,
// not per-call configuration).
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return ferrors.New(ferrors.Validation, "embedding.Registry.Register", "cannot register nil provider")
	}

	name := provider.Name()
	if name == "" {
		return ferrors.New(ferrors.Validation, "embedding.Registry.Register", "provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return ferrors.New(ferrors.Conflict, "embedding.Registry.Register", fmt.Sprintf("provider %q already registered", name))
	}

	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, ferrors.New(ferrors.NotFound, "embedding.Registry.Get", fmt.Sprintf("provider %q not found", name))
	}

	return provider, nil
}

// List returns registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// MustRegister registers a provider and panics on error; used from init().
func (r *Registry) MustRegister(provider Provider) {
	if err := r.Register(provider); err != nil {
		panic(err)
	}
}

// Unregister removes a provider by name. No-op if it isn't registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// Clear removes every registered provider.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]Provider)
}

func init() {
	if err := Register(&MockProvider{}); err != nil {
		panic(fmt.Sprintf("embedding: failed to register mock provider: %v", err))
	}
}
