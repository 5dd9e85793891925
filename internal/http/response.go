package http

import (
	"gamedb/pkg/cluster"
	"gamedb/pkg/record"
	"gamedb/pkg/replication"
)

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// NodeStatus is a topology member together with its replication health.
type NodeStatus struct {
	cluster.Node
	Online bool `json:"online"`
}

// Response represents the standard API response format.
type Response struct {
	Status  Status                         `json:"status,omitempty"`
	Message string                         `json:"message,omitempty"`
	Error   string                         `json:"error,omitempty"`
	Record  *record.Record                 `json:"record,omitempty"`
	Records []record.Record                `json:"records,omitempty"`
	Nodes   []NodeStatus                   `json:"nodes,omitempty"`
	Pending []replication.PendingOperation `json:"pending,omitempty"`
	Cycle   *replication.CycleReport       `json:"cycle,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewMessageResponse(msg string) Response {
	return Response{Status: StatusSuccess, Message: msg}
}

func NewRecordResponse(rec record.Record) Response {
	return Response{Status: StatusSuccess, Record: &rec}
}

func NewRecordsResponse(recs []record.Record) Response {
	return Response{Status: StatusSuccess, Records: recs}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
