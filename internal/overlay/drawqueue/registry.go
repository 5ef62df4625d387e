package drawqueue

import (
	"sync"

	"github.com/clovis-agent/clovis/internal/overlay/transport"
)

// Registry is the live mapping from entity_id to its last-drawn payload.
// It satisfies transport.Registry so a newly connected overlay client can
// be replayed the current screen state.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]transport.Outbound
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]transport.Outbound)}
}

// Put records or updates an entity's last-drawn payload.
func (r *Registry) Put(id string, payload transport.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[id] = payload
}

// Remove deletes an entity by id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, id)
}

// Clear removes every tracked entity.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = make(map[string]transport.Outbound)
}

// Snapshot implements transport.Registry: it returns the last-drawn payload
// for every live entity, in map-iteration order (no ordering guarantee
// beyond "all live entities are included").
func (r *Registry) Snapshot() []transport.Outbound {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.Outbound, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	return out
}
