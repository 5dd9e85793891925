package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gamedb/pkg/backend"
	"gamedb/pkg/cluster"
	"gamedb/pkg/dberrors"
	"gamedb/pkg/metrics"
	"gamedb/pkg/record"
	"gamedb/pkg/types"
)

// Change is a write that already committed on its origin node.
type Change struct {
	Kind   types.OpKind
	Origin types.NodeID
	// Record is the new state for CREATE and UPDATE and the deleted row for
	// DELETE.
	Record record.Record
	// Previous is the stored state before an UPDATE.
	Previous *record.Record
}

// Dispatch is one planned sub-operation against one target.
type Dispatch struct {
	Kind   types.OpKind
	Target types.NodeID
	Stmt   backend.Statement
}

// Report summarizes one propagation.
type Report struct {
	Applied int
	Queued  int
}

// Config wires an Engine.
type Config struct {
	Topology    cluster.Topology
	Partitioner *cluster.Partitioner
	Dispatcher  *Dispatcher
	Queue       *Queue
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// Engine applies committed writes to the other nodes that must hold them.
type Engine struct {
	topo    cluster.Topology
	router  *cluster.Partitioner
	disp    *Dispatcher
	queue   *Queue
	log     *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		topo:    cfg.Topology,
		router:  cfg.Partitioner,
		disp:    cfg.Dispatcher,
		queue:   cfg.Queue,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		now:     time.Now,
	}
}

// Plan lists the sub-operations a change needs. It has no side effects.
//
// From the mirror, the owning shard receives the same operation; an update
// that changes the owner becomes delete-at-old plus insert-at-new. From a
// shard, the mirror always receives the same operation; an update whose new
// key belongs to the other shard also moves the row there.
func (e *Engine) Plan(c Change) ([]Dispatch, error) {
	if _, ok := e.topo.Node(c.Origin); !ok {
		return nil, fmt.Errorf("plan: origin %q: %w", c.Origin, dberrors.ErrUnknownNode)
	}

	var plan []Dispatch
	add := func(kind types.OpKind, target types.NodeID, stmt backend.Statement) {
		plan = append(plan, Dispatch{Kind: kind, Target: target, Stmt: stmt})
	}

	insert, err := backend.Insert(c.Record)
	if err != nil {
		return nil, err
	}
	update, err := backend.Update(c.Record)
	if err != nil {
		return nil, err
	}
	del := backend.Delete(c.Record.ID)
	owner := e.router.Owner(c.Record.PartitionKey)

	if e.topo.IsMirror(c.Origin) {
		switch c.Kind {
		case types.OpCreate:
			add(types.OpCreate, owner, insert)
		case types.OpUpdate:
			prevOwner := owner
			if c.Previous != nil {
				prevOwner = e.router.Owner(c.Previous.PartitionKey)
			}
			if prevOwner == owner {
				add(types.OpUpdate, owner, update)
			} else {
				add(types.OpDelete, prevOwner, del)
				add(types.OpCreate, owner, insert)
			}
		case types.OpDelete:
			add(types.OpDelete, owner, del)
		default:
			return nil, fmt.Errorf("plan: op %q: %w", c.Kind, dberrors.ErrInvalidArgument)
		}
		return plan, nil
	}

	mirror := e.topo.Mirror.ID
	switch c.Kind {
	case types.OpCreate:
		add(types.OpCreate, mirror, insert)
	case types.OpUpdate:
		add(types.OpUpdate, mirror, update)
		if owner != c.Origin {
			add(types.OpDelete, c.Origin, del)
			add(types.OpCreate, owner, insert)
		}
	case types.OpDelete:
		add(types.OpDelete, mirror, del)
	default:
		return nil, fmt.Errorf("plan: op %q: %w", c.Kind, dberrors.ErrInvalidArgument)
	}
	return plan, nil
}

// Propagate dispatches every planned sub-operation independently. A target
// marked offline is never called; its operation is queued right away. So is
// an operation on a row that already has a queued operation for that target,
// which keeps writes to one row in order. A call that fails is queued too.
// Nothing here undoes the origin commit.
func (e *Engine) Propagate(ctx context.Context, c Change) (Report, error) {
	plan, err := e.Plan(c)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	for _, d := range plan {
		if e.dispatch(ctx, c, d) {
			rep.Applied++
		} else {
			rep.Queued++
		}
	}
	return rep, nil
}

func (e *Engine) dispatch(ctx context.Context, c Change, d Dispatch) bool {
	log := e.log.With(
		"origin", c.Origin,
		"target", d.Target,
		"op", d.Kind,
		"id", c.Record.ID,
	)

	var err error
	if e.queue.HasPending(d.Target, d.Stmt.RecordID()) {
		err = ErrBehindPending
	} else {
		err = e.disp.Attempt(ctx, d.Target, d.Stmt)
	}
	switch {
	case err == nil:
		e.metrics.Propagation(string(d.Target), metrics.ResultApplied)
		log.Debug("propagated")
		return true
	case errors.Is(err, ErrBehindPending):
		e.metrics.Propagation(string(d.Target), metrics.ResultQueued)
		log.Info("earlier operation on the record is still queued, operation queued behind it")
	case errors.Is(err, ErrTargetOffline):
		e.metrics.Propagation(string(d.Target), metrics.ResultQueued)
		log.Warn("target is unavailable, operation queued for retry")
	default:
		e.metrics.Propagation(string(d.Target), metrics.ResultFailed)
		log.Warn("propagation failed, operation queued for retry", "error", err)
	}

	e.queue.Push(newPending(d, e.now(), err))
	return false
}
