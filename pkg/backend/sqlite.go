package backend

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/record"
	"gamedb/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// SQLite stores one node's records in a SQLite file.
type SQLite struct {
	node types.NodeID
	db   *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(node types.NodeID, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	// sqlite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{node: node, db: db}, nil
}

func (s *SQLite) Execute(ctx context.Context, stmt Statement) (Result, error) {
	q, err := stmt.query()
	if err != nil {
		return Result{}, dberrors.NewBackendError(s.node, string(stmt.Kind), err)
	}

	switch stmt.Kind {
	case KindSelect, KindList:
		rows, err := s.query(ctx, q, stmt.args())
		if err != nil {
			return Result{}, dberrors.NewBackendError(s.node, string(stmt.Kind), err)
		}
		return Result{Rows: rows}, nil
	case KindInsert, KindUpdate, KindDelete:
		res, err := s.db.ExecContext(ctx, q, stmt.args()...)
		if err != nil {
			return Result{}, dberrors.NewBackendError(s.node, string(stmt.Kind), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Result{}, dberrors.NewBackendError(s.node, string(stmt.Kind), err)
		}
		return Result{RowsAffected: n}, nil
	default:
		return Result{}, dberrors.NewBackendError(s.node, string(stmt.Kind),
			fmt.Errorf("unsupported statement kind"))
	}
}

func (s *SQLite) query(ctx context.Context, q string, args []any) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var id, key, payload string
		if err := rows.Scan(&id, &key, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec, err := decodeRow(id, key, payload)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
