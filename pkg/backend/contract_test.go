package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/record"
)

func game(id, date, name string) record.Record {
	return record.Record{
		ID:           id,
		PartitionKey: record.MustParseDate(date),
		Payload:      map[string]string{"name": name},
	}
}

func mustExec(t *testing.T, b Backend, stmt Statement, err error) Result {
	t.Helper()
	require.NoError(t, err)
	res, err := b.Execute(context.Background(), stmt)
	require.NoError(t, err)
	return res
}

// runContract checks the behaviour every driver must share.
func runContract(t *testing.T, b Backend) {
	ctx := context.Background()

	t.Run("insert and select", func(t *testing.T) {
		stmt, err := Insert(game("10", "2005-01-01", "Portal"))
		res := mustExec(t, b, stmt, err)
		assert.Equal(t, int64(1), res.RowsAffected)

		rec, ok, err := Lookup(ctx, b, "10")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "2005-01-01", rec.PartitionKey.String())
		assert.Equal(t, "Portal", rec.Payload["name"])
	})

	t.Run("duplicate insert is a backend error", func(t *testing.T) {
		stmt, err := Insert(game("10", "2006-01-01", "Other"))
		require.NoError(t, err)
		_, err = b.Execute(ctx, stmt)
		var be *dberrors.BackendError
		require.True(t, errors.As(err, &be), "got %v", err)
		assert.Equal(t, "insert", be.Op)
	})

	t.Run("update", func(t *testing.T) {
		stmt, err := Update(game("10", "2015-01-01", "Portal 2"))
		res := mustExec(t, b, stmt, err)
		assert.Equal(t, int64(1), res.RowsAffected)

		rec, ok, err := Lookup(ctx, b, "10")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2015, rec.PartitionKey.Year())
		assert.Equal(t, "Portal 2", rec.Payload["name"])
	})

	t.Run("update of missing row affects nothing", func(t *testing.T) {
		stmt, err := Update(game("404", "2015-01-01", "x"))
		res := mustExec(t, b, stmt, err)
		assert.Equal(t, int64(0), res.RowsAffected)
	})

	t.Run("list is ordered by id", func(t *testing.T) {
		stmt, err := Insert(game("02", "2011-01-01", "B"))
		mustExec(t, b, stmt, err)
		stmt, err = Insert(game("01", "2001-01-01", "A"))
		mustExec(t, b, stmt, err)

		res := mustExec(t, b, List(), nil)
		ids := make([]string, 0, len(res.Rows))
		for _, r := range res.Rows {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"01", "02", "10"}, ids)
	})

	t.Run("delete", func(t *testing.T) {
		res := mustExec(t, b, Delete("10"), nil)
		assert.Equal(t, int64(1), res.RowsAffected)

		_, ok, err := Lookup(ctx, b, "10")
		require.NoError(t, err)
		assert.False(t, ok)

		res = mustExec(t, b, Delete("10"), nil)
		assert.Equal(t, int64(0), res.RowsAffected)
	})

	t.Run("query text other than the kind's is refused", func(t *testing.T) {
		forged := []Statement{
			{Kind: KindDelete, Query: "DELETE FROM records WHERE id != ?", Params: []string{"x"}},
			{Kind: KindDelete, Query: "DROP TABLE records"},
			{Kind: KindList, Query: "SELECT id, partition_key, payload FROM records WHERE 0"},
		}
		for _, stmt := range forged {
			_, err := b.Execute(ctx, stmt)
			var be *dberrors.BackendError
			require.True(t, errors.As(err, &be), "%q: got %v", stmt.Query, err)
			assert.True(t, errors.Is(err, ErrQueryMismatch), "%q: got %v", stmt.Query, err)
		}

		res := mustExec(t, b, List(), nil)
		assert.Len(t, res.Rows, 2)
	})

	t.Run("empty query runs the kind's statement", func(t *testing.T) {
		res := mustExec(t, b, Statement{Kind: KindSelect, Params: []string{"01"}}, nil)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "A", res.Rows[0].Payload["name"])
	})
}
