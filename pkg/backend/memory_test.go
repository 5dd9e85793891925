package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedb/pkg/dberrors"
)

func TestMemory_Contract(t *testing.T) {
	runContract(t, NewMemory("mirror"))
}

func TestMemory_BadParams(t *testing.T) {
	m := NewMemory("shardA")
	_, err := m.Execute(context.Background(), Statement{Kind: KindInsert, Params: []string{"only-id"}})
	require.Error(t, err)

	_, err = m.Execute(context.Background(), Statement{Kind: "drop"})
	require.Error(t, err)
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory("shardA")
	require.NoError(t, m.Close())

	_, err := m.Execute(context.Background(), List())
	assert.True(t, errors.Is(err, dberrors.ErrClosed))
}

func TestMemory_CanceledContext(t *testing.T) {
	m := NewMemory("shardA")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Execute(ctx, List())
	assert.True(t, errors.Is(err, context.Canceled))
}
