package source

import (
	"fmt"
	"sync"

	"github.com/nhle/inboxsync/internal/model"
)

// Registry holds the configured connectors, keyed by provider kind.
// Registration happens at startup; lookups happen from sync workers,
// so access is guarded.
type Registry struct {
	mu         sync.RWMutex
	connectors map[model.ProviderKind]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[model.ProviderKind]Connector)}
}

// Register adds a connector. Registering the same provider twice is a
// programming error.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := c.Provider()
	if _, ok := r.connectors[kind]; ok {
		return fmt.Errorf("connector for provider %q already registered", kind)
	}
	r.connectors[kind] = c
	return nil
}

// Get returns the connector for a provider kind.
func (r *Registry) Get(kind model.ProviderKind) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[kind]
	if !ok {
		return nil, fmt.Errorf("no connector registered for provider %q", kind)
	}
	return c, nil
}

// Sink returns the task-manager connector, if one is registered and
// supports the sink contract.
func (r *Registry) Sink() (SinkConnector, error) {
	c, err := r.Get(model.ProviderTaskManager)
	if err != nil {
		return nil, err
	}
	sink, ok := c.(SinkConnector)
	if !ok {
		return nil, fmt.Errorf("connector for %q does not support sink operations", model.ProviderTaskManager)
	}
	return sink, nil
}

// Providers returns the registered provider kinds.
func (r *Registry) Providers() []model.ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]model.ProviderKind, 0, len(r.connectors))
	for k := range r.connectors {
		kinds = append(kinds, k)
	}
	return kinds
}
