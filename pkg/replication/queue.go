package replication

import (
	"fmt"
	"log/slog"
	"sync"

	"gamedb/pkg/metrics"
	"gamedb/pkg/types"
	"gamedb/pkg/wal"
)

// Journal persists queue changes. *wal.WAL implements it.
type Journal interface {
	Append(e wal.Entry) (uint64, error)
	Replay(fn func(wal.Entry) error) error
	Rewrite(live []wal.Entry) error
}

// QueueConfig wires optional collaborators into a Queue.
type QueueConfig struct {
	Journal   Journal
	WarnDepth int // log a warning each time the depth reaches a multiple of it
	Logger    *slog.Logger
	Metrics   *metrics.Collector
}

// recordKey identifies the row an operation writes on its target.
type recordKey struct {
	target types.NodeID
	id     string
}

func keyOf(op PendingOperation) recordKey {
	return recordKey{target: op.Target, id: op.Stmt.RecordID()}
}

// Queue holds failed propagations in arrival order. There is no cap, no
// deduplication and no backoff: an entry stays until a retry succeeds.
type Queue struct {
	mu    sync.Mutex
	items []PendingOperation

	// unresolved counts entries per row until they are acked, including the
	// ones a cycle has drained and not yet requeued.
	unresolved map[recordKey]int

	journal   Journal
	warnDepth int
	log       *slog.Logger
	metrics   *metrics.Collector
}

func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Queue{
		unresolved: make(map[recordKey]int),
		journal:    cfg.Journal,
		warnDepth:  cfg.WarnDepth,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// RestoreQueue rebuilds the queue from cfg.Journal: every added entry that was
// never acknowledged is pending again, in its original order.
func RestoreQueue(cfg QueueConfig) (*Queue, error) {
	q := NewQueue(cfg)
	if q.journal == nil {
		return q, nil
	}

	var (
		order []string
		live  = make(map[string]PendingOperation)
	)
	err := q.journal.Replay(func(e wal.Entry) error {
		switch e.Kind {
		case wal.KindAdd:
			op, err := decodePending(e.Payload)
			if err != nil {
				return fmt.Errorf("decode pending %s: %w", e.ID, err)
			}
			if _, seen := live[e.ID]; !seen {
				order = append(order, e.ID)
			}
			live[e.ID] = op
		case wal.KindAck:
			delete(live, e.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("restore queue: %w", err)
	}

	for _, id := range order {
		if op, ok := live[id]; ok {
			q.items = append(q.items, op)
			q.unresolved[keyOf(op)]++
		}
	}
	q.metrics.SetPending(len(q.items))
	if len(q.items) > 0 {
		q.log.Info("restored pending operations", "count", len(q.items))
	}
	return q, nil
}

func (q *Queue) Push(op PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.record(wal.KindAdd, op)
	q.items = append(q.items, op)
	q.unresolved[keyOf(op)]++
	depth := len(q.items)
	q.metrics.SetPending(depth)

	if q.warnDepth > 0 && depth%q.warnDepth == 0 {
		q.log.Warn("retry queue is growing", "depth", depth, "target", op.Target)
	}
}

// Drain takes every queued entry and leaves the queue empty. Entries pushed
// while the caller works on the snapshot are kept separately, so nothing in
// the snapshot can be skipped or visited twice.
func (q *Queue) Drain() []PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}

// Requeue puts survivors of a drained snapshot back ahead of anything pushed
// since the drain, keeping FIFO order.
func (q *Queue) Requeue(ops []PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(ops) > 0 {
		merged := make([]PendingOperation, 0, len(ops)+len(q.items))
		merged = append(merged, ops...)
		merged = append(merged, q.items...)
		q.items = merged
	}
	q.metrics.SetPending(len(q.items))
}

// Ack records that op reached its target.
func (q *Queue) Ack(op PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.record(wal.KindAck, op)

	k := keyOf(op)
	if q.unresolved[k] <= 1 {
		delete(q.unresolved, k)
	} else {
		q.unresolved[k]--
	}
}

// HasPending reports whether an operation on row id of target is queued or
// being retried. Later operations on that row must wait behind it.
func (q *Queue) HasPending(target types.NodeID, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unresolved[recordKey{target: target, id: id}] > 0
}

// Compact rewrites the journal so it holds only the queued entries.
func (q *Queue) Compact() error {
	if q.journal == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	live := make([]wal.Entry, 0, len(q.items))
	for _, op := range q.items {
		payload, err := op.encode()
		if err != nil {
			return fmt.Errorf("encode pending %s: %w", op.ID, err)
		}
		live = append(live, wal.Entry{Kind: wal.KindAdd, ID: op.ID, Payload: payload})
	}
	return q.journal.Rewrite(live)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// List returns a copy of the queued entries.
func (q *Queue) List() []PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PendingOperation, len(q.items))
	copy(out, q.items)
	return out
}

// record journals a change. A journal failure only costs durability across
// restarts, so it is logged and the in-memory queue stays authoritative.
func (q *Queue) record(kind wal.Kind, op PendingOperation) {
	if q.journal == nil {
		return
	}

	var payload []byte
	if kind == wal.KindAdd {
		b, err := op.encode()
		if err != nil {
			q.log.Error("failed to encode pending operation", "id", op.ID, "error", err)
			return
		}
		payload = b
	}
	if _, err := q.journal.Append(wal.Entry{Kind: kind, ID: op.ID, Payload: payload}); err != nil {
		q.log.Error("failed to journal pending operation", "id", op.ID, "error", err)
	}
}
