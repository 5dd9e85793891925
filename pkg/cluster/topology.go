package cluster

import (
	"fmt"

	"gamedb/pkg/types"
)

// Range selects which side of the partition threshold a shard owns.
type Range string

const (
	// RangeLower owns keys whose year is below the threshold.
	RangeLower Range = "lower"
	// RangeUpper owns keys whose year is at or above the threshold.
	RangeUpper Range = "upper"
)

// Node is a fixed member of the topology.
type Node struct {
	ID    types.NodeID `json:"id"`
	Role  types.Role   `json:"role"`
	Range Range        `json:"range,omitempty"`
}

// Topology is the static three-node layout: one mirror and two shards
// splitting the key space at a year threshold.
type Topology struct {
	Mirror Node
	Lower  Node
	Upper  Node
}

func NewTopology(nodes []Node) (Topology, error) {
	var (
		t    Topology
		seen = make(map[types.NodeID]struct{}, len(nodes))
	)

	for _, n := range nodes {
		if n.ID == "" {
			return Topology{}, fmt.Errorf("topology: node with empty id")
		}
		if _, dup := seen[n.ID]; dup {
			return Topology{}, fmt.Errorf("topology: duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}

		switch {
		case n.Role == types.RoleMirror:
			if t.Mirror.ID != "" {
				return Topology{}, fmt.Errorf("topology: second mirror %q", n.ID)
			}
			n.Range = ""
			t.Mirror = n
		case n.Role == types.RoleShard && n.Range == RangeLower:
			if t.Lower.ID != "" {
				return Topology{}, fmt.Errorf("topology: second lower shard %q", n.ID)
			}
			t.Lower = n
		case n.Role == types.RoleShard && n.Range == RangeUpper:
			if t.Upper.ID != "" {
				return Topology{}, fmt.Errorf("topology: second upper shard %q", n.ID)
			}
			t.Upper = n
		default:
			return Topology{}, fmt.Errorf("topology: node %q has role %q range %q", n.ID, n.Role, n.Range)
		}
	}

	if t.Mirror.ID == "" || t.Lower.ID == "" || t.Upper.ID == "" {
		return Topology{}, fmt.Errorf("topology: need one mirror, one lower shard and one upper shard")
	}
	return t, nil
}

// Nodes lists members in a stable order: mirror, lower, upper.
func (t Topology) Nodes() []Node {
	return []Node{t.Mirror, t.Lower, t.Upper}
}

func (t Topology) Node(id types.NodeID) (Node, bool) {
	for _, n := range t.Nodes() {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

func (t Topology) IsMirror(id types.NodeID) bool {
	return id == t.Mirror.ID
}

// DefaultNodes is the classic layout: mirror, shardA (< threshold),
// shardB (>= threshold).
func DefaultNodes() []Node {
	return []Node{
		{ID: "mirror", Role: types.RoleMirror},
		{ID: "shardA", Role: types.RoleShard, Range: RangeLower},
		{ID: "shardB", Role: types.RoleShard, Range: RangeUpper},
	}
}

func DefaultTopology() Topology {
	t, err := NewTopology(DefaultNodes())
	if err != nil {
		panic(err)
	}
	return t
}
