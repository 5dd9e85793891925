package replication

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gamedb/pkg/metrics"
)

// DefaultInterval is the reconciliation period.
const DefaultInterval = 5 * time.Second

// CycleReport counts what one reconciliation pass did. Visited equals the
// number of entries in the drained snapshot; entries pushed while the pass
// runs wait for the next one.
type CycleReport struct {
	Visited   int `json:"visited"`
	Succeeded int `json:"succeeded"`
	Retained  int `json:"retained"`
	Offline   int `json:"offline"`
	// Deferred entries were kept without a call because an earlier entry for
	// the same row of the same target was retained in this pass.
	Deferred int `json:"deferred"`
}

// Reconciler periodically retries queued operations against targets that
// are online again.
type Reconciler struct {
	queue    *Queue
	disp     *Dispatcher
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Collector

	// one pass at a time, whether from the ticker or a manual trigger
	cycleMu sync.Mutex
	wg      sync.WaitGroup
}

func NewReconciler(queue *Queue, disp *Dispatcher, interval time.Duration, log *slog.Logger, m *metrics.Collector) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		queue:    queue,
		disp:     disp,
		interval: interval,
		log:      log,
		metrics:  m,
	}
}

// Start runs the reconciler loop in a goroutine. Wait returns once it has
// stopped.
func (r *Reconciler) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Run(ctx)
	}()
}

// Run blocks, running a cycle every interval until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reconciler started", "interval", r.interval)
	for {
		select {
		case <-ticker.C:
			r.Cycle(ctx)
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		}
	}
}

// Wait blocks until the loop begun by Start has returned.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Cycle makes one pass over the entries queued right now. Each entry is
// looked at exactly once: offline targets are skipped, online ones are
// retried, successes are removed and failures go back in their original
// order ahead of anything queued meanwhile. Once an entry is kept, later
// entries for the same row of that target are kept too without a call.
func (r *Reconciler) Cycle(ctx context.Context) CycleReport {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	snapshot := r.queue.Drain()
	rep := CycleReport{Visited: len(snapshot)}
	if len(snapshot) == 0 {
		r.queue.Requeue(nil)
		r.metrics.CycleDone()
		return rep
	}

	retained := make([]PendingOperation, 0, len(snapshot))
	held := make(map[recordKey]bool)
	for _, op := range snapshot {
		key := keyOf(op)
		if ctx.Err() != nil {
			retained = append(retained, op)
			continue
		}
		if held[key] {
			rep.Deferred++
			retained = append(retained, op)
			continue
		}

		err := r.disp.Attempt(ctx, op.Target, op.Stmt)
		switch {
		case err == nil:
			rep.Succeeded++
			r.queue.Ack(op)
			r.metrics.Retry(string(op.Target), metrics.ResultApplied)
			r.log.Info("queued operation applied", "id", op.ID, "target", op.Target, "op", op.Kind, "attempts", op.Attempts+1)
			continue
		case errors.Is(err, ErrTargetOffline):
			rep.Offline++
		default:
			op.Attempts++
			op.LastError = err.Error()
			r.metrics.Retry(string(op.Target), metrics.ResultFailed)
			r.log.Warn("queued operation failed again", "id", op.ID, "target", op.Target, "op", op.Kind, "attempts", op.Attempts, "error", err)
		}
		held[key] = true
		retained = append(retained, op)
	}

	rep.Retained = len(retained)
	r.queue.Requeue(retained)

	if rep.Succeeded > 0 {
		if err := r.queue.Compact(); err != nil {
			r.log.Error("failed to compact retry journal", "error", err)
		}
	}
	r.metrics.CycleDone()
	r.log.Debug("reconciliation cycle done",
		"visited", rep.Visited,
		"succeeded", rep.Succeeded,
		"retained", rep.Retained,
		"deferred", rep.Deferred,
	)
	return rep
}
