package replication

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedb/pkg/types"
	"gamedb/pkg/wal"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(QueueConfig{Logger: discardLogger()})
	for _, id := range []string{"a", "b", "c"} {
		q.Push(pendingInsert(t, id, "2012-01-01", "shardB"))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []string{"a", "b", "c"}, ids(q.List()))

	snap := q.Drain()
	assert.Equal(t, []string{"a", "b", "c"}, ids(snap))
	assert.Equal(t, 0, q.Len())

	q.Push(pendingInsert(t, "d", "2012-01-01", "shardB"))
	q.Requeue(snap[1:])
	assert.Equal(t, []string{"b", "c", "d"}, ids(q.List()))
}

func TestQueue_ListIsACopy(t *testing.T) {
	q := NewQueue(QueueConfig{Logger: discardLogger()})
	q.Push(pendingInsert(t, "a", "2012-01-01", "shardB"))

	l := q.List()
	l[0].Attempts = 99
	assert.Equal(t, 0, q.List()[0].Attempts)
}

func TestQueue_NoDeduplication(t *testing.T) {
	q := NewQueue(QueueConfig{Logger: discardLogger()})
	op := pendingInsert(t, "a", "2012-01-01", "shardB")
	q.Push(op)
	q.Push(op)
	assert.Equal(t, 2, q.Len())
}

func TestRestoreQueue_AckedEntriesAreGone(t *testing.T) {
	j, err := wal.Open(filepath.Join(t.TempDir(), "q.wal"))
	require.NoError(t, err)
	defer j.Close()

	q, err := RestoreQueue(QueueConfig{Journal: j, Logger: discardLogger()})
	require.NoError(t, err)

	a := pendingInsert(t, "a", "2012-01-01", "shardB")
	b := pendingInsert(t, "b", "2012-01-01", "shardB")
	q.Push(a)
	q.Push(b)
	q.Ack(a)

	restored, err := RestoreQueue(QueueConfig{Journal: j, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(restored.List()))
}

func TestQueue_HasPendingUntilAcked(t *testing.T) {
	q := NewQueue(QueueConfig{Logger: discardLogger()})
	a := pendingInsert(t, "a", "2005-01-01", "shardA")
	q.Push(a)

	assert.True(t, q.HasPending("shardA", "a"))
	assert.False(t, q.HasPending("shardB", "a"), "other target")
	assert.False(t, q.HasPending("shardA", "b"), "other row")

	// a drained entry is still unresolved until the cycle acks it
	snap := q.Drain()
	assert.True(t, q.HasPending("shardA", "a"))

	q.Requeue(snap)
	assert.True(t, q.HasPending("shardA", "a"))

	q.Ack(q.Drain()[0])
	q.Requeue(nil)
	assert.False(t, q.HasPending("shardA", "a"))
}

func TestRestoreQueue_RestoresPendingRows(t *testing.T) {
	j, err := wal.Open(filepath.Join(t.TempDir(), "q.wal"))
	require.NoError(t, err)
	defer j.Close()

	q, err := RestoreQueue(QueueConfig{Journal: j, Logger: discardLogger()})
	require.NoError(t, err)
	q.Push(pendingInsert(t, "a", "2005-01-01", "shardA"))

	restored, err := RestoreQueue(QueueConfig{Journal: j, Logger: discardLogger()})
	require.NoError(t, err)
	assert.True(t, restored.HasPending("shardA", "a"))
}

func TestRestoreQueue_OpKinds(t *testing.T) {
	entry := func(kind string) wal.Entry {
		return wal.Entry{
			Kind:    wal.KindAdd,
			ID:      "op-1",
			Payload: []byte(`{"id":"op-1","kind":"` + kind + `","target":"shardA","statement":{"kind":"delete","params":["g1"]}}`),
		}
	}

	t.Run("kind is normalized", func(t *testing.T) {
		j, err := wal.Open(filepath.Join(t.TempDir(), "q.wal"))
		require.NoError(t, err)
		defer j.Close()
		_, err = j.Append(entry("delete"))
		require.NoError(t, err)

		q, err := RestoreQueue(QueueConfig{Journal: j, Logger: discardLogger()})
		require.NoError(t, err)
		require.Equal(t, 1, q.Len())
		assert.Equal(t, types.OpDelete, q.List()[0].Kind)
	})

	t.Run("unknown kind fails the restore", func(t *testing.T) {
		j, err := wal.Open(filepath.Join(t.TempDir(), "q.wal"))
		require.NoError(t, err)
		defer j.Close()
		_, err = j.Append(entry("MERGE"))
		require.NoError(t, err)

		_, err = RestoreQueue(QueueConfig{Journal: j, Logger: discardLogger()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "op-1")
	})
}
