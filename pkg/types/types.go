package types

import (
	"fmt"
	"strings"
)

// NodeID identifies a storage node in the static topology.
type NodeID string

// Role is the replication role of a node.
type Role string

const (
	// RoleMirror holds a full copy of every record.
	RoleMirror Role = "mirror"
	// RoleShard holds only the records its partition predicate accepts.
	RoleShard Role = "shard"
)

// OpKind is the kind of client write that triggered a propagation.
type OpKind string

const (
	OpCreate OpKind = "CREATE"
	OpUpdate OpKind = "UPDATE"
	OpDelete OpKind = "DELETE"
)

// ParseOpKind accepts the kind in any letter case.
func ParseOpKind(s string) (OpKind, error) {
	switch k := OpKind(strings.ToUpper(s)); k {
	case OpCreate, OpUpdate, OpDelete:
		return k, nil
	default:
		return "", fmt.Errorf("unknown op kind %q", s)
	}
}
