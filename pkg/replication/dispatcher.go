package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamedb/pkg/backend"
	"gamedb/pkg/dberrors"
	"gamedb/pkg/types"
)

// DefaultAttemptTimeout bounds a single call to a target node.
const DefaultAttemptTimeout = 3 * time.Second

// ErrTargetOffline means the registry marks the target unreachable, so no
// call was issued.
var ErrTargetOffline = errors.New("target offline")

// ErrBehindPending means an earlier operation on the same row of the target
// is still queued, so this one was queued behind it without a call.
var ErrBehindPending = errors.New("earlier operation on the record is still queued")

type healthChecker interface {
	Online(node types.NodeID) bool
}

// Dispatcher issues one statement to one target node, honouring the node
// registry and the per-attempt timeout. Engine and Reconciler share it.
type Dispatcher struct {
	health   healthChecker
	backends map[types.NodeID]backend.Backend
	timeout  time.Duration
}

func NewDispatcher(health healthChecker, backends map[types.NodeID]backend.Backend, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Dispatcher{
		health:   health,
		backends: backends,
		timeout:  timeout,
	}
}

func (d *Dispatcher) Attempt(ctx context.Context, target types.NodeID, stmt backend.Statement) error {
	if !d.health.Online(target) {
		return ErrTargetOffline
	}

	b, ok := d.backends[target]
	if !ok {
		return fmt.Errorf("dispatch to %s: %w", target, dberrors.ErrUnknownNode)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := b.Execute(ctx, stmt)
	return err
}
