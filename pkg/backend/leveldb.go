package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/record"
	"gamedb/pkg/types"
)

const levelRowPrefix = "rec/"

// LevelDB stores a node's records in an embedded LevelDB directory, one JSON
// value per record under rec/<id>.
type LevelDB struct {
	node types.NodeID
	path string
	mu   sync.Mutex // serializes check-then-write statements
	db   *leveldb.DB
}

func OpenLevelDB(node types.NodeID, path string) (*LevelDB, error) {
	options := opt.Options{
		WriteBuffer: 4096 * 1024,
	}
	db, err := leveldb.OpenFile(path, &options)
	if err != nil {
		return nil, dberrors.NewBackendError(node, "open", err)
	}
	return &LevelDB{node: node, path: path, db: db}, nil
}

func levelKey(id string) []byte {
	return []byte(levelRowPrefix + id)
}

func (l *LevelDB) Execute(ctx context.Context, stmt Statement) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, dberrors.NewBackendError(l.node, string(stmt.Kind), err)
	}
	res, err := l.execute(stmt)
	if err != nil {
		if errors.Is(err, leveldb.ErrClosed) {
			err = dberrors.ErrClosed
		}
		return Result{}, dberrors.NewBackendError(l.node, string(stmt.Kind), err)
	}
	return res, nil
}

func (l *LevelDB) execute(stmt Statement) (Result, error) {
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
		l.mu.Lock()
		defer l.mu.Unlock()
		exists, err := l.db.Has(levelKey(rec.ID), nil)
		if err != nil {
			return Result{}, err
		}
		if exists {
			return Result{}, errUniqueID
		}
		return l.put(rec)

	case KindUpdate:
		if err := expectParams(stmt, 3); err != nil {
			return Result{}, err
		}
		rec, err := decodeRow(stmt.Params[2], stmt.Params[0], stmt.Params[1])
		if err != nil {
			return Result{}, err
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		exists, err := l.db.Has(levelKey(rec.ID), nil)
		if err != nil || !exists {
			return Result{}, err
		}
		return l.put(rec)

	case KindDelete:
		if err := expectParams(stmt, 1); err != nil {
			return Result{}, err
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		key := levelKey(stmt.Params[0])
		exists, err := l.db.Has(key, nil)
		if err != nil || !exists {
			return Result{}, err
		}
		if err := l.db.Delete(key, &opt.WriteOptions{Sync: true}); err != nil {
			return Result{}, err
		}
		return Result{RowsAffected: 1}, nil

	case KindSelect:
		if err := expectParams(stmt, 1); err != nil {
			return Result{}, err
		}
		val, err := l.db.Get(levelKey(stmt.Params[0]), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			return Result{}, nil
		}
		if err != nil {
			return Result{}, err
		}
		rec, err := unmarshalLevelRow(val)
		if err != nil {
			return Result{}, err
		}
		return Result{Rows: []record.Record{rec}}, nil

	case KindList:
		iter := l.db.NewIterator(util.BytesPrefix([]byte(levelRowPrefix)), nil)
		defer iter.Release()

		var rows []record.Record
		for iter.First(); iter.Valid(); iter.Next() {
			rec, err := unmarshalLevelRow(iter.Value())
			if err != nil {
				return Result{}, err
			}
			rows = append(rows, rec)
		}
		if err := iter.Error(); err != nil {
			return Result{}, err
		}
		return Result{Rows: rows}, nil

	default:
		return Result{}, fmt.Errorf("unsupported statement kind %q", stmt.Kind)
	}
}

func (l *LevelDB) put(rec record.Record) (Result, error) {
	val, err := json.Marshal(rec)
	if err != nil {
		return Result{}, err
	}
	if err := l.db.Put(levelKey(rec.ID), val, &opt.WriteOptions{Sync: true}); err != nil {
		return Result{}, err
	}
	return Result{RowsAffected: 1}, nil
}

func unmarshalLevelRow(val []byte) (record.Record, error) {
	var rec record.Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return record.Record{}, fmt.Errorf("decode row: %w", err)
	}
	return rec, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
