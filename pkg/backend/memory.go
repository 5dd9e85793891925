package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/record"
	"gamedb/pkg/types"
)

var errUniqueID = errors.New("UNIQUE constraint failed: records.id")

type orderedRows = skipmap.FuncMap[string, record.Record]

// Memory keeps a node's records in an ordered skip list. Reads are lock free,
// writes are serialized so check-then-write statements stay atomic.
type Memory struct {
	node   types.NodeID
	mu     sync.Mutex
	rows   *orderedRows
	closed atomic.Bool
}

func NewMemory(node types.NodeID) *Memory {
	return &Memory{
		node: node,
		rows: skipmap.NewFunc[string, record.Record](func(a, b string) bool {
			return a < b
		}),
	}
}

func (m *Memory) Execute(ctx context.Context, stmt Statement) (Result, error) {
	if m.closed.Load() {
		return Result{}, dberrors.NewBackendError(m.node, string(stmt.Kind), dberrors.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, dberrors.NewBackendError(m.node, string(stmt.Kind), err)
	}

	res, err := m.execute(stmt)
	if err != nil {
		return Result{}, dberrors.NewBackendError(m.node, string(stmt.Kind), err)
	}
	return res, nil
}

func (m *Memory) execute(stmt Statement) (Result, error) {
	if _, err := stmt.query(); err != nil {
		return Result{}, err
	}

	switch stmt.Kind {
	case KindInsert:
		if err := expectParams(stmt, 3); err != nil {
			return Result{}, err
		}
		rec, err := decodeRow(stmt.Params[0], stmt.Params[1], stmt.Params[2])
		if err != nil {
			return Result{}, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, loaded := m.rows.LoadOrStore(rec.ID, rec); loaded {
			return Result{}, errUniqueID
		}
		return Result{RowsAffected: 1}, nil

	case KindUpdate:
		if err := expectParams(stmt, 3); err != nil {
			return Result{}, err
		}
		rec, err := decodeRow(stmt.Params[2], stmt.Params[0], stmt.Params[1])
		if err != nil {
			return Result{}, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.rows.Load(rec.ID); !ok {
			return Result{RowsAffected: 0}, nil
		}
		m.rows.Store(rec.ID, rec)
		return Result{RowsAffected: 1}, nil

	case KindDelete:
		if err := expectParams(stmt, 1); err != nil {
			return Result{}, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.rows.LoadAndDelete(stmt.Params[0]); !ok {
			return Result{RowsAffected: 0}, nil
		}
		return Result{RowsAffected: 1}, nil

	case KindSelect:
		if err := expectParams(stmt, 1); err != nil {
			return Result{}, err
		}
		rec, ok := m.rows.Load(stmt.Params[0])
		if !ok {
			return Result{}, nil
		}
		return Result{Rows: []record.Record{rec}}, nil

	case KindList:
		rows := make([]record.Record, 0, m.rows.Len())
		m.rows.Range(func(_ string, rec record.Record) bool {
			rows = append(rows, rec)
			return true
		})
		return Result{Rows: rows}, nil

	default:
		return Result{}, fmt.Errorf("unsupported statement kind %q", stmt.Kind)
	}
}

func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}
