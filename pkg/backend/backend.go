package backend

import (
	"context"
	"errors"
	"fmt"

	"gamedb/pkg/record"
)

// Kind names the storage primitive a Statement performs.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindSelect Kind = "select"
	KindList   Kind = "list"
)

const (
	insertQuery = "INSERT INTO records (id, partition_key, payload) VALUES (?, ?, ?)"
	updateQuery = "UPDATE records SET partition_key = ?, payload = ? WHERE id = ?"
	deleteQuery = "DELETE FROM records WHERE id = ?"
	selectQuery = "SELECT id, partition_key, payload FROM records WHERE id = ?"
	listQuery   = "SELECT id, partition_key, payload FROM records ORDER BY id"
)

var queries = map[Kind]string{
	KindInsert: insertQuery,
	KindUpdate: updateQuery,
	KindDelete: deleteQuery,
	KindSelect: selectQuery,
	KindList:   listQuery,
}

// ErrQueryMismatch rejects a Statement whose Query is not the one its Kind
// stands for. Drivers run only the fixed query of each kind.
var ErrQueryMismatch = errors.New("statement query does not match its kind")

// Statement is a serialized storage operation. Params are positional and
// match the placeholders of Query, so every driver can execute the same value
// and a queued Statement can be replayed later unchanged. Query is
// informational on the wire: it may be empty, and any other text than the
// fixed query for Kind is refused.
type Statement struct {
	Kind   Kind     `json:"kind"`
	Query  string   `json:"query"`
	Params []string `json:"params,omitempty"`
}

// query returns the fixed SQL for the statement kind.
func (s Statement) query() (string, error) {
	q, ok := queries[s.Kind]
	if !ok {
		return "", fmt.Errorf("unsupported statement kind %q", s.Kind)
	}
	if s.Query != "" && s.Query != q {
		return "", ErrQueryMismatch
	}
	return q, nil
}

// RecordID is the id of the record the statement writes or selects, empty
// for list.
func (s Statement) RecordID() string {
	switch s.Kind {
	case KindInsert, KindDelete, KindSelect:
		if len(s.Params) > 0 {
			return s.Params[0]
		}
	case KindUpdate:
		if len(s.Params) == 3 {
			return s.Params[2]
		}
	}
	return ""
}

func (s Statement) args() []any {
	out := make([]any, len(s.Params))
	for i, p := range s.Params {
		out[i] = p
	}
	return out
}

func (s Statement) String() string {
	return fmt.Sprintf("%s %v", s.Kind, s.Params)
}

// Result is what a backend returns. Rows is set for select and list.
type Result struct {
	Rows         []record.Record `json:"rows,omitempty"`
	RowsAffected int64           `json:"rows_affected"`
}

// Backend is one node's storage. Errors are *dberrors.BackendError.
type Backend interface {
	Execute(ctx context.Context, stmt Statement) (Result, error)
	Close() error
}

func Insert(r record.Record) (Statement, error) {
	payload, err := r.EncodePayload()
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Kind:   KindInsert,
		Query:  insertQuery,
		Params: []string{r.ID, r.PartitionKey.String(), payload},
	}, nil
}

func Update(r record.Record) (Statement, error) {
	payload, err := r.EncodePayload()
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Kind:   KindUpdate,
		Query:  updateQuery,
		Params: []string{r.PartitionKey.String(), payload, r.ID},
	}, nil
}

func Delete(id string) Statement {
	return Statement{Kind: KindDelete, Query: deleteQuery, Params: []string{id}}
}

func Select(id string) Statement {
	return Statement{Kind: KindSelect, Query: selectQuery, Params: []string{id}}
}

func List() Statement {
	return Statement{Kind: KindList, Query: listQuery}
}

// Lookup runs a select and reports whether the record exists.
func Lookup(ctx context.Context, b Backend, id string) (record.Record, bool, error) {
	res, err := b.Execute(ctx, Select(id))
	if err != nil {
		return record.Record{}, false, err
	}
	if len(res.Rows) == 0 {
		return record.Record{}, false, nil
	}
	return res.Rows[0], true, nil
}

func expectParams(stmt Statement, n int) error {
	if len(stmt.Params) != n {
		return fmt.Errorf("%s: want %d params, got %d", stmt.Kind, n, len(stmt.Params))
	}
	return nil
}

func decodeRow(id, key, payload string) (record.Record, error) {
	date, err := record.ParseDate(key)
	if err != nil {
		return record.Record{}, err
	}
	p, err := record.DecodePayload(payload)
	if err != nil {
		return record.Record{}, err
	}
	return record.Record{ID: id, PartitionKey: date, Payload: p}, nil
}
