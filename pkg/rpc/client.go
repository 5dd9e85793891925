package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gamedb/pkg/cluster"
	"gamedb/pkg/record"
	"gamedb/pkg/replication"
	"gamedb/pkg/types"
)

const defaultTimeout = 3 * time.Second

// Client talks to the public API of a gamedb process.
type Client struct {
	baseURL string
	client  *http.Client
}

// NodeStatus mirrors an entry of GET /nodes.
type NodeStatus struct {
	cluster.Node
	Online bool `json:"online"`
}

type apiResponse struct {
	Status  string                         `json:"status"`
	Message string                         `json:"message"`
	Error   string                         `json:"error"`
	Record  *record.Record                 `json:"record"`
	Records []record.Record                `json:"records"`
	Nodes   []NodeStatus                   `json:"nodes"`
	Pending []replication.PendingOperation `json:"pending"`
	Cycle   *replication.CycleReport       `json:"cycle"`
}

// APIError is a non-2xx answer.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status=%d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (apiResponse, error) {
	var (
		resp apiResponse
		rd   io.Reader
	)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return resp, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return resp, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return resp, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	b, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(b, &resp); err != nil {
		return resp, &APIError{StatusCode: httpResp.StatusCode, Message: strings.TrimSpace(string(b))}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, &APIError{StatusCode: httpResp.StatusCode, Message: resp.Error}
	}
	return resp, nil
}

func recordsPath(node types.NodeID) string {
	return "/nodes/" + url.PathEscape(string(node)) + "/records"
}

func recordPath(node types.NodeID, id string) string {
	return recordsPath(node) + "/" + url.PathEscape(id)
}

func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}

func (c *Client) Create(ctx context.Context, node types.NodeID, rec record.Record) error {
	_, err := c.do(ctx, http.MethodPost, recordsPath(node), rec)
	return err
}

func (c *Client) Update(ctx context.Context, node types.NodeID, rec record.Record) error {
	_, err := c.do(ctx, http.MethodPut, recordPath(node, rec.ID), rec)
	return err
}

func (c *Client) Delete(ctx context.Context, node types.NodeID, id string) error {
	_, err := c.do(ctx, http.MethodDelete, recordPath(node, id), nil)
	return err
}

// Get returns found=false on 404.
func (c *Client) Get(ctx context.Context, node types.NodeID, id string) (record.Record, bool, error) {
	resp, err := c.do(ctx, http.MethodGet, recordPath(node, id), nil)
	if IsNotFound(err) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, err
	}
	if resp.Record == nil {
		return record.Record{}, false, fmt.Errorf("GET %s: empty record", id)
	}
	return *resp.Record, true, nil
}

func (c *Client) List(ctx context.Context, node types.NodeID) ([]record.Record, error) {
	resp, err := c.do(ctx, http.MethodGet, recordsPath(node), nil)
	return resp.Records, err
}

func (c *Client) SimulateFailure(ctx context.Context, node types.NodeID, online bool) (string, error) {
	body := map[string]any{"node": node, "status": online}
	resp, err := c.do(ctx, http.MethodPost, "/simulate/failure", body)
	return resp.Message, err
}

func (c *Client) Nodes(ctx context.Context) ([]NodeStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/nodes", nil)
	return resp.Nodes, err
}

func (c *Client) Pending(ctx context.Context) ([]replication.PendingOperation, error) {
	resp, err := c.do(ctx, http.MethodGet, "/pending", nil)
	return resp.Pending, err
}

func (c *Client) Reconcile(ctx context.Context) (replication.CycleReport, error) {
	resp, err := c.do(ctx, http.MethodPost, "/reconcile", nil)
	if err != nil {
		return replication.CycleReport{}, err
	}
	if resp.Cycle == nil {
		return replication.CycleReport{}, fmt.Errorf("reconcile: empty report")
	}
	return *resp.Cycle, nil
}
