package cluster

import (
	"errors"
	"sync"
	"testing"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/types"
)

func TestRegistry_DefaultOnline(t *testing.T) {
	r := NewRegistry(DefaultTopology())
	for _, id := range []string{"mirror", "shardA", "shardB"} {
		if !r.Online(types.NodeID(id)) {
			t.Fatalf("%s should start online", id)
		}
	}
}

func TestRegistry_SetHealth(t *testing.T) {
	r := NewRegistry(DefaultTopology())

	if err := r.SetHealth("shardA", false); err != nil {
		t.Fatalf("SetHealth: %v", err)
	}
	if r.Online("shardA") {
		t.Fatal("shardA should be offline")
	}
	// transitions are unconditional, repeating one is fine
	if err := r.SetHealth("shardA", false); err != nil {
		t.Fatalf("SetHealth repeat: %v", err)
	}
	if err := r.SetHealth("shardA", true); err != nil {
		t.Fatalf("SetHealth: %v", err)
	}
	if !r.Online("shardA") {
		t.Fatal("shardA should be back online")
	}

	snap := r.Snapshot()
	if len(snap) != 3 || !snap["mirror"] {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}

func TestRegistry_UnknownNode(t *testing.T) {
	r := NewRegistry(DefaultTopology())
	err := r.SetHealth("node4", false)
	if !errors.Is(err, dberrors.ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if r.Online("node4") {
		t.Fatal("unknown node must not report online")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(DefaultTopology())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.SetHealth("shardB", i%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Online("shardB")
		}()
	}
	wg.Wait()
}
