package replication

import (
	"context"
	"log/slog"
	"sync"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/listener"
)

const defaultBuffer = 256

// Async runs propagation after the client already has its answer. Changes
// are handled one at a time in submission order.
type Async struct {
	engine *Engine
	in     chan Change
	worker *listener.Listener[Change]
	log    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewAsync(engine *Engine, buffer int) *Async {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	a := &Async{
		engine: engine,
		in:     make(chan Change, buffer),
		log:    engine.log,
	}
	a.worker = listener.New(a.in, a.handle, func(c Change, err error) {
		a.log.Error("propagation rejected", "origin", c.Origin, "op", c.Kind, "id", c.Record.ID, "error", err)
	})
	return a
}

func (a *Async) handle(ctx context.Context, c Change) error {
	_, err := a.engine.Propagate(ctx, c)
	return err
}

func (a *Async) Start(ctx context.Context) {
	a.worker.Start(ctx)
}

// Submit hands c to the worker. It blocks only while the buffer is full.
func (a *Async) Submit(c Change) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return dberrors.ErrClosed
	}
	a.in <- c
	return nil
}

// Stop refuses new changes and waits for the submitted ones.
func (a *Async) Stop() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.worker.Stop()
}
