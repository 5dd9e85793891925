package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gamedb/pkg/dberrors"
	"gamedb/pkg/types"
)

// ExecPath is the route on which a gamedb process executes statements
// against one of its local nodes.
const ExecPath = "/api/internal/nodes/{node}/exec"

const defaultHTTPTimeout = 5 * time.Second

// ExecResponse is the body returned by the exec endpoint.
type ExecResponse struct {
	Result
	Error string `json:"error,omitempty"`
}

// HTTP reaches a node that lives in another gamedb process.
type HTTP struct {
	node       types.NodeID
	endpoint   string
	httpClient *http.Client
}

// NewHTTP builds a client for node hosted at baseURL. The remote process must
// serve the node under the same id.
func NewHTTP(node types.NodeID, baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	path := strings.Replace(ExecPath, "{node}", url.PathEscape(string(node)), 1)
	return &HTTP{
		node:     node,
		endpoint: strings.TrimRight(baseURL, "/") + path,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTP) Execute(ctx context.Context, stmt Statement) (Result, error) {
	res, err := c.execute(ctx, stmt)
	if err != nil {
		return Result{}, dberrors.NewBackendError(c.node, string(stmt.Kind), err)
	}
	return res, nil
}

func (c *HTTP) execute(ctx context.Context, stmt Statement) (Result, error) {
	if _, err := stmt.query(); err != nil {
		return Result{}, err
	}

	body, err := json.Marshal(stmt)
	if err != nil {
		return Result{}, fmt.Errorf("encode statement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("create exec request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("execute exec request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read exec response: %w", err)
	}

	var er ExecResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return Result{}, fmt.Errorf("exec failed with status %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("exec failed with status %d: %s", resp.StatusCode, er.Error)
	}
	return er.Result, nil
}

func (c *HTTP) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
