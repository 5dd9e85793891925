package dberrors

import (
	"errors"
	"fmt"

	"gamedb/pkg/types"
)

var (
	ErrNotFound        = errors.New("gamedb: record not found")
	ErrDuplicateID     = errors.New("gamedb: duplicate record id")
	ErrPartitionRule   = errors.New("gamedb: partition rule violation")
	ErrUnknownNode     = errors.New("gamedb: unknown node")
	ErrInvalidArgument = errors.New("gamedb: invalid argument")
	ErrClosed          = errors.New("gamedb: closed")
)

// BackendError reports a failed storage call on a node, either a connectivity
// problem or a constraint violation.
type BackendError struct {
	Node types.NodeID
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Node, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewBackendError wraps err unless it already is a *BackendError.
func NewBackendError(node types.NodeID, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Node: node, Op: op, Err: err}
}

// IsValidation reports whether err rejects a request before any write.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateID) ||
		errors.Is(err, ErrInvalidArgument)
}
