package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

// Registry maps database ids to the adapters that can open sessions on them.
type Registry struct {
	mu       sync.RWMutex
	adapters map[dbcapabilities.DatabaseID]DatabaseAdapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[dbcapabilities.DatabaseID]DatabaseAdapter),
	}
}

// Register adds an adapter under its Type, replacing any earlier one.
func (r *Registry) Register(a DatabaseAdapter) {
	r.mu.Lock()
	r.adapters[a.Type()] = a
	r.mu.Unlock()
}

// Lookup finds the adapter for a canonical id or any alias dbcapabilities
// knows ("postgresql", "pg", "mongo", ...).
func (r *Registry) Lookup(name string) (DatabaseAdapter, error) {
	id, ok := dbcapabilities.ParseID(name)
	if !ok {
		return nil, NewConfigurationError(dbcapabilities.DatabaseID(name), "connectionType",
			fmt.Sprintf("unknown database type: %s", name))
	}

	r.mu.RLock()
	a, found := r.adapters[id]
	r.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, id)
	}
	return a, nil
}

// Registered returns the ids with an adapter, sorted.
func (r *Registry) Registered() []dbcapabilities.DatabaseID {
	r.mu.RLock()
	ids := make([]dbcapabilities.DatabaseID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Connect opens a session with the adapter for config.ConnectionType.
// Driver failures come back wrapped in a DatabaseError for the "connect" operation.
func (r *Registry) Connect(ctx context.Context, config ConnectionConfig) (Connection, error) {
	a, err := r.Lookup(config.ConnectionType)
	if err != nil {
		return nil, err
	}

	conn, err := a.Connect(ctx, config)
	if err != nil {
		return nil, WrapError(a.Type(), "connect", err)
	}
	return conn, nil
}

var globalRegistry = NewRegistry()

// Register adds an adapter to the global registry. Driver packages call it
// from init.
func Register(a DatabaseAdapter) {
	globalRegistry.Register(a)
}

// Lookup finds an adapter in the global registry.
func Lookup(name string) (DatabaseAdapter, error) {
	return globalRegistry.Lookup(name)
}

// GlobalRegistry returns the registry driver packages register into.
func GlobalRegistry() *Registry {
	return globalRegistry
}
