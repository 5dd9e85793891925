package http

import (
	"encoding/json"
	"testing"

	"gamedb/pkg/record"
)

func mustRecord(t *testing.T, body string) record.Record {
	t.Helper()
	var rec record.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		t.Fatalf("bad record fixture: %v", err)
	}
	return rec
}
