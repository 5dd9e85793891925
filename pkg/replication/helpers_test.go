package replication

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamedb/pkg/backend"
	"gamedb/pkg/cluster"
	"gamedb/pkg/record"
	"gamedb/pkg/types"
)

var errUnavailable = errors.New("remote unavailable")

// scriptedBackend wraps an in-memory backend, counts calls and can be told
// to fail every call.
type scriptedBackend struct {
	*backend.Memory

	mu     sync.Mutex
	fail   bool
	calls  int
	onExec func(stmt backend.Statement)
}

func newScripted(node types.NodeID) *scriptedBackend {
	return &scriptedBackend{Memory: backend.NewMemory(node)}
}

func (s *scriptedBackend) Execute(ctx context.Context, stmt backend.Statement) (backend.Result, error) {
	s.mu.Lock()
	s.calls++
	fail, hook := s.fail, s.onExec
	s.mu.Unlock()

	if hook != nil {
		hook(stmt)
	}
	if fail {
		return backend.Result{}, errUnavailable
	}
	return s.Memory.Execute(ctx, stmt)
}

func (s *scriptedBackend) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func (s *scriptedBackend) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	topo       cluster.Topology
	router     *cluster.Partitioner
	registry   *cluster.Registry
	nodes      map[types.NodeID]*scriptedBackend
	queue      *Queue
	disp       *Dispatcher
	engine     *Engine
	reconciler *Reconciler
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	topo := cluster.DefaultTopology()
	f := &fixture{
		topo:     topo,
		router:   cluster.NewPartitioner(topo, cluster.DefaultThresholdYear),
		registry: cluster.NewRegistry(topo),
		nodes:    make(map[types.NodeID]*scriptedBackend),
	}

	backends := make(map[types.NodeID]backend.Backend)
	for _, n := range topo.Nodes() {
		b := newScripted(n.ID)
		f.nodes[n.ID] = b
		backends[n.ID] = b
	}

	f.queue = NewQueue(QueueConfig{Logger: discardLogger()})
	f.disp = NewDispatcher(f.registry, backends, time.Second)
	f.engine = NewEngine(Config{
		Topology:    topo,
		Partitioner: f.router,
		Dispatcher:  f.disp,
		Queue:       f.queue,
		Logger:      discardLogger(),
	})
	f.reconciler = NewReconciler(f.queue, f.disp, 10*time.Millisecond, discardLogger(), nil)
	return f
}

// seed writes rec straight into node's storage, bypassing call counters.
func (f *fixture) seed(t *testing.T, node types.NodeID, rec record.Record) {
	t.Helper()
	stmt, err := backend.Insert(rec)
	require.NoError(t, err)
	_, err = f.nodes[node].Memory.Execute(context.Background(), stmt)
	require.NoError(t, err)
}

func (f *fixture) lookup(t *testing.T, node types.NodeID, id string) (record.Record, bool) {
	t.Helper()
	rec, ok, err := backend.Lookup(context.Background(), f.nodes[node].Memory, id)
	require.NoError(t, err)
	return rec, ok
}

func game(id, date string) record.Record {
	return record.Record{
		ID:           id,
		PartitionKey: record.MustParseDate(date),
		Payload:      map[string]string{"name": "game-" + id},
	}
}
