package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, w *WAL) []Entry {
	t.Helper()
	var out []Entry
	require.NoError(t, w.Replay(func(e Entry) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func TestWAL_AppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.wal")
	w, err := Open(path)
	require.NoError(t, err)

	seq, err := w.Append(Entry{Kind: KindAdd, ID: "op-1", Payload: []byte(`{"target":"shardA"}`)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	seq, err = w.Append(Entry{Kind: KindAck, ID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	got := collect(t, w)
	require.Len(t, got, 2)
	assert.Equal(t, KindAdd, got[0].Kind)
	assert.Equal(t, "op-1", got[0].ID)
	assert.Equal(t, `{"target":"shardA"}`, string(got[0].Payload))
	assert.Equal(t, KindAck, got[1].Kind)
	require.NoError(t, w.Close())

	// sequence numbering survives reopen
	w, err = Open(path)
	require.NoError(t, err)
	defer w.Close()
	seq, err = w.Append(Entry{Kind: KindAdd, ID: "op-2"})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

func TestWAL_TornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.wal")
	w, err := Open(path)
	require.NoError(t, err)
	_, err = w.Append(Entry{Kind: KindAdd, ID: "op-1", Payload: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.Write([]byte{9, 0, 0, 0, 0, 0, 0, 0, 1, 5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err = Open(path)
	require.NoError(t, err)
	defer w.Close()
	got := collect(t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "op-1", got[0].ID)
}

func TestWAL_Rewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.wal")
	w, err := Open(path)
	require.NoError(t, err)
	defer w.Close()

	for _, id := range []string{"a", "b", "c"} {
		_, err := w.Append(Entry{Kind: KindAdd, ID: id})
		require.NoError(t, err)
	}
	_, err = w.Append(Entry{Kind: KindAck, ID: "b"})
	require.NoError(t, err)

	require.NoError(t, w.Rewrite([]Entry{{Kind: KindAdd, ID: "a"}, {Kind: KindAdd, ID: "c"}}))

	got := collect(t, w)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.Greater(t, got[0].SeqNum, uint64(4))

	_, err = w.Append(Entry{Kind: KindAdd, ID: "d"})
	require.NoError(t, err)
	assert.Len(t, collect(t, w), 3)
}
