package cluster

import (
	"fmt"
	"sync"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/types"
)

// Registry tracks replication reachability per node. It is changed only by
// fault injection; every node starts online. Nothing is persisted.
type Registry struct {
	mu     sync.RWMutex
	online map[types.NodeID]bool
}

func NewRegistry(topo Topology) *Registry {
	r := &Registry{online: make(map[types.NodeID]bool, 3)}
	for _, n := range topo.Nodes() {
		r.online[n.ID] = true
	}
	return r
}

func (r *Registry) SetHealth(node types.NodeID, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.online[node]; !ok {
		return fmt.Errorf("set health %q: %w", node, dberrors.ErrUnknownNode)
	}
	r.online[node] = online
	return nil
}

// Online reports false for unknown nodes.
func (r *Registry) Online(node types.NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.online[node]
}

func (r *Registry) Snapshot() map[types.NodeID]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[types.NodeID]bool, len(r.online))
	for id, ok := range r.online {
		out[id] = ok
	}
	return out
}
