package replication

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"gamedb/pkg/backend"
	"gamedb/pkg/types"
)

// PendingOperation is a propagation that has not reached its target yet.
// It is a plain value so it can be listed, journaled and replayed.
type PendingOperation struct {
	ID         string            `json:"id"`
	Kind       types.OpKind      `json:"kind"`
	Target     types.NodeID      `json:"target"`
	Stmt       backend.Statement `json:"statement"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
}

func newPending(d Dispatch, now time.Time, cause error) PendingOperation {
	op := PendingOperation{
		ID:         uuid.NewString(),
		Kind:       d.Kind,
		Target:     d.Target,
		Stmt:       d.Stmt,
		EnqueuedAt: now,
	}
	if cause != nil {
		op.LastError = cause.Error()
	}
	return op
}

func (op PendingOperation) encode() ([]byte, error) {
	return json.Marshal(op)
}

func decodePending(b []byte) (PendingOperation, error) {
	var op PendingOperation
	if err := json.Unmarshal(b, &op); err != nil {
		return PendingOperation{}, err
	}
	kind, err := types.ParseOpKind(string(op.Kind))
	if err != nil {
		return PendingOperation{}, err
	}
	op.Kind = kind
	return op, nil
}
