package dberrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("create: %w", ErrDuplicateID), true},
		{fmt.Errorf("get 7: %w", ErrNotFound), true},
		{ErrInvalidArgument, true},
		{ErrPartitionRule, false},
		{ErrUnknownNode, false},
		{NewBackendError("shardA", "insert", errors.New("disk full")), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidation(tt.err), "%v", tt.err)
	}
}

func TestNewBackendError(t *testing.T) {
	assert.NoError(t, NewBackendError("shardA", "insert", nil))

	cause := errors.New("connection refused")
	err := NewBackendError("shardA", "insert", cause)
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "insert", be.Op)
	assert.True(t, errors.Is(err, cause))

	// an existing backend error keeps its original node
	again := NewBackendError("mirror", "update", err)
	require.True(t, errors.As(again, &be))
	assert.Equal(t, "shardA", string(be.Node))
}
