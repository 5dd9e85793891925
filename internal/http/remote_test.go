package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gamedb/pkg/backend"
	"gamedb/pkg/types"
)

// TestRemoteShardReplication runs shardB in a second server and reaches it
// through the http driver.
func TestRemoteShardReplication(t *testing.T) {
	shardB := backend.NewMemory("shardB")
	peer := NewServer(Deps{Backends: map[types.NodeID]backend.Backend{"shardB": shardB}}, Options{})

	var down atomic.Bool
	peerHandler := peer.createRouter()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			http.Error(w, "connection reset", http.StatusServiceUnavailable)
			return
		}
		peerHandler.ServeHTTP(w, r)
	}))
	defer ts.Close()

	env := newTestEnvWith(t, map[types.NodeID]backend.Backend{
		"shardB": backend.NewHTTP("shardB", ts.URL, time.Second),
	})

	rr := env.do(http.MethodPost, "/nodes/mirror/records", `{"id":"r1","partition_key":"2013-09-17","payload":{"name":"GTA V"}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if _, ok, _ := backend.Lookup(context.Background(), shardB, "r1"); !ok {
		t.Fatal("r1 should be stored by the peer")
	}

	// the registry still says online, so the call is made and fails
	down.Store(true)
	rr = env.do(http.MethodPost, "/nodes/mirror/records", `{"id":"r2","partition_key":"2018-10-26","payload":{"name":"RDR2"}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create while peer is down: expected 201, got %d", rr.Code)
	}
	pending := env.queue.List()
	if len(pending) != 1 || pending[0].LastError == "" {
		t.Fatalf("expected one failed pending operation, got %+v", pending)
	}

	rr = env.do(http.MethodGet, "/nodes/shardB/records/r1", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("read through a down peer: expected 502, got %d", rr.Code)
	}

	down.Store(false)
	rr = env.do(http.MethodPost, "/reconcile", "")
	if cycle := decodeResp(t, rr).Cycle; cycle == nil || cycle.Succeeded != 1 {
		t.Fatalf("reconcile: unexpected %s", rr.Body.String())
	}
	if _, ok, _ := backend.Lookup(context.Background(), shardB, "r2"); !ok {
		t.Fatal("r2 should reach the peer after reconcile")
	}

	// the peer refuses to forward statements for nodes it does not store
	rr = env.do(http.MethodPost, "/api/internal/nodes/shardB/exec", `{"kind":"list","query":"x"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("exec of a remote node: expected 404, got %d", rr.Code)
	}
}
