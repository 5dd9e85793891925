package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedb/pkg/record"
)

func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/nodes/mirror/records/g1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"status":"success","record":{"id":"g1","partition_key":"2004-11-16","payload":{"name":"HL2"}}}`)
		case http.MethodPut:
			var rec record.Record
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
			assert.Equal(t, "g1", rec.ID)
			_, _ = io.WriteString(w, `{"status":"success"}`)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/nodes/mirror/records/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"status":"error","error":"gamedb: record not found"}`)
	})
	mux.HandleFunc("/nodes/shardA/records", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"status":"error","error":"gamedb: partition rule violation"}`)
	})
	mux.HandleFunc("/simulate/failure", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Node   string `json:"node"`
			Status bool   `json:"status"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "shardB", body.Node)
		assert.False(t, body.Status)
		_, _ = io.WriteString(w, `{"status":"success","message":"Simulated shardB status: offline"}`)
	})
	mux.HandleFunc("/reconcile", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","cycle":{"visited":3,"succeeded":1,"retained":2,"offline":2}}`)
	})
	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","nodes":[{"id":"mirror","role":"mirror","online":true},{"id":"shardB","role":"shard","range":"upper","online":false}]}`)
	})

	return httptest.NewServer(mux)
}

func TestClient(t *testing.T) {
	ts := fakeAPI(t)
	defer ts.Close()

	c := NewClient(ts.URL+"/", time.Second)
	ctx := context.Background()

	rec, found, err := c.Get(ctx, "mirror", "g1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "HL2", rec.Payload["name"])

	_, found, err = c.Get(ctx, "mirror", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Update(ctx, "mirror", rec))

	err = c.Create(ctx, "shardA", rec)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "partition rule")

	msg, err := c.SimulateFailure(ctx, "shardB", false)
	require.NoError(t, err)
	assert.Equal(t, "Simulated shardB status: offline", msg)

	rep, err := c.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Visited)
	assert.Equal(t, 2, rep.Offline)

	nodes, err := c.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.False(t, nodes[1].Online)
	assert.Equal(t, "upper", string(nodes[1].Range))
}
