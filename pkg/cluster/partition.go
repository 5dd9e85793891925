package cluster

import (
	"gamedb/pkg/record"
	"gamedb/pkg/types"
)

// DefaultThresholdYear splits records released before 2010 from the rest.
const DefaultThresholdYear = 2010

// Partitioner maps a partition key to the shard that owns it.
// The mirror is never an owner; it is always an additional replica.
type Partitioner struct {
	topo      Topology
	threshold int
}

func NewPartitioner(topo Topology, thresholdYear int) *Partitioner {
	return &Partitioner{topo: topo, threshold: thresholdYear}
}

func (p *Partitioner) Threshold() int { return p.threshold }

func (p *Partitioner) Owner(key record.Date) types.NodeID {
	if key.Year() < p.threshold {
		return p.topo.Lower.ID
	}
	return p.topo.Upper.ID
}

// Accepts is the node's partition predicate.
func (p *Partitioner) Accepts(node types.NodeID, key record.Date) bool {
	if p.topo.IsMirror(node) {
		return true
	}
	return p.Owner(key) == node
}
