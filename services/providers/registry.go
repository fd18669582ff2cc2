package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrProviderNotRegistered is returned when a provider id has no registration
var ErrProviderNotRegistered = errors.New("provider not registered")

// Registry maps provider identifiers to capability implementations.
// It is populated at startup and read concurrently during dispatch.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *zap.Logger
}

// NewRegistry creates a new provider registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register stores provider under id, replacing any previous registration
func (r *Registry) Register(id string, provider Provider) {
	r.mu.Lock()
	_, replaced := r.providers[id]
	r.providers[id] = provider
	r.mu.Unlock()

	if replaced {
		r.logger.Info("provider replaced", zap.String("provider", id))
		return
	}
	r.logger.Info("provider registered", zap.String("provider", id))
}

// RegisterProvider registers a provider under its own name
func (r *Registry) RegisterProvider(provider Provider) {
	r.Register(provider.Name(), provider)
}

// Resolve retrieves a provider by id
func (r *Registry) Resolve(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, id)
	}

	return provider, nil
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[id]
	return exists
}

// List returns all registered provider ids in sorted order
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

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}
