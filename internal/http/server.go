package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gamedb/pkg/backend"
	"gamedb/pkg/cluster"
	"gamedb/pkg/db"
	"gamedb/pkg/dberrors"
	"gamedb/pkg/record"
	"gamedb/pkg/replication"
	"gamedb/pkg/types"
)

const (
	contentTypeJSON                = "application/json"
	defaultHTTPPort                = "8080"
	defaultShutdownTimeout         = time.Second * 5
	defaultReadHeaderTimeout       = time.Second
	maxRequestBodyBytes      int64 = 1 << 20
)

type iRecordService interface {
	Create(ctx context.Context, node types.NodeID, rec record.Record) (record.Record, error)
	Update(ctx context.Context, node types.NodeID, rec record.Record) (record.Record, error)
	Delete(ctx context.Context, node types.NodeID, id string) error
	Get(ctx context.Context, node types.NodeID, id string) (record.Record, error)
	Search(ctx context.Context, node types.NodeID, opts db.SearchOptions) ([]record.Record, error)
}

type iRegistry interface {
	SetHealth(node types.NodeID, online bool) error
	Snapshot() map[types.NodeID]bool
}

type iPendingQueue interface {
	List() []replication.PendingOperation
}

type iReconciler interface {
	Cycle(ctx context.Context) replication.CycleReport
}

// Deps are the collaborators the HTTP API exposes.
type Deps struct {
	Topology   cluster.Topology
	Records    iRecordService
	Registry   iRegistry
	Queue      iPendingQueue
	Reconciler iReconciler
	// Backends are the nodes stored in this process; the exec endpoint
	// serves them to remote peers.
	Backends map[types.NodeID]backend.Backend
	Gatherer prometheus.Gatherer
}

// Options tune the listener.
type Options struct {
	Port              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server represents the HTTP server of one gamedb process.
type Server struct {
	deps       Deps
	opts       Options
	httpServer *http.Server
	URL        string
	addr       string
}

// NewServer creates a new server instance
func NewServer(deps Deps, opts Options) *Server {
	if opts.Port == "" {
		opts.Port = defaultHTTPPort
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		deps: deps,
		opts: opts,
		URL:  "http://localhost:" + opts.Port,
		addr: ":" + opts.Port,
	}
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Post("/simulate/failure", s.handleSimulateFailure)
	r.Get("/nodes", s.handleNodes)
	r.Get("/pending", s.handlePending)
	r.Post("/reconcile", s.handleReconcile)

	r.Route("/nodes/{node}/records", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})

	r.Post(backend.ExecPath, s.handleExec)

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case status >= http.StatusInternalServerError:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	case dberrors.IsValidation(err):
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	default:
		slog.Info("request refused", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func statusFor(err error) int {
	var be *dberrors.BackendError
	switch {
	case errors.Is(err, dberrors.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, dberrors.ErrNotFound), errors.Is(err, dberrors.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, dberrors.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, dberrors.ErrPartitionRule):
		return http.StatusUnprocessableEntity
	case errors.As(err, &be):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", dberrors.ErrInvalidArgument, err)
	}
	return nil
}

func nodeParam(r *http.Request) types.NodeID {
	return types.NodeID(chi.URLParam(r, "node"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

// healthStatus accepts true/false or "online"/"offline".
type healthStatus bool

func (h *healthStatus) UnmarshalJSON(b []byte) error {
	var asBool bool
	if err := json.Unmarshal(b, &asBool); err == nil {
		*h = healthStatus(asBool)
		return nil
	}
	var asString string
	if err := json.Unmarshal(b, &asString); err != nil {
		return fmt.Errorf("status must be a boolean or online/offline")
	}
	switch strings.ToLower(asString) {
	case "online", "up", "true":
		*h = true
	case "offline", "down", "false":
		*h = false
	default:
		return fmt.Errorf("unknown status %q", asString)
	}
	return nil
}

type simulateFailureRequest struct {
	Node   types.NodeID  `json:"node"`
	Status *healthStatus `json:"status"`
}

func (s *Server) handleSimulateFailure(w http.ResponseWriter, r *http.Request) {
	var req simulateFailureRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Node == "" || req.Status == nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing node or status"))
		return
	}

	online := bool(*req.Status)
	if err := s.deps.Registry.SetHealth(req.Node, online); err != nil {
		s.writeError(w, r, err)
		return
	}

	state := "offline"
	if online {
		state = "online"
	}
	slog.Warn("simulated node health change", "node", req.Node, "status", state)
	s.writeJSON(w, http.StatusOK, NewMessageResponse(fmt.Sprintf("Simulated %s status: %s", req.Node, state)))
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	health := s.deps.Registry.Snapshot()
	resp := NewSuccessResponse()
	for _, n := range s.deps.Topology.Nodes() {
		resp.Nodes = append(resp.Nodes, NodeStatus{Node: n, Online: health[n.ID]})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	resp := NewSuccessResponse()
	resp.Pending = s.deps.Queue.List()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	rep := s.deps.Reconciler.Cycle(r.Context())
	resp := NewSuccessResponse()
	resp.Cycle = &rep
	s.writeJSON(w, http.StatusOK, resp)
}

// parseSearch reads from, to, limit and order from the query string.
func parseSearch(r *http.Request) (db.SearchOptions, error) {
	var (
		opts db.SearchOptions
		q    = r.URL.Query()
		err  error
	)
	if v := q.Get("from"); v != "" {
		if opts.From, err = record.ParseDate(v); err != nil {
			return opts, fmt.Errorf("%w: from: %v", dberrors.ErrInvalidArgument, err)
		}
	}
	if v := q.Get("to"); v != "" {
		if opts.To, err = record.ParseDate(v); err != nil {
			return opts, fmt.Errorf("%w: to: %v", dberrors.ErrInvalidArgument, err)
		}
	}
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("%w: limit: %v", dberrors.ErrInvalidArgument, err)
		}
	}
	opts.Reverse = q.Get("order") == "desc"
	return opts, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts, err := parseSearch(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.deps.Records.Search(r.Context(), nodeParam(r), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []record.Record{}
	}
	s.writeJSON(w, http.StatusOK, NewRecordsResponse(recs))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rec record.Record
	if err := s.decode(w, r, &rec); err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.deps.Records.Create(r.Context(), nodeParam(r), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, NewRecordResponse(created))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Records.Get(r.Context(), nodeParam(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewRecordResponse(rec))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var rec record.Record
	if err := s.decode(w, r, &rec); err != nil {
		s.writeError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Record id does not match path"))
		return
	}

	updated, err := s.deps.Records.Update(r.Context(), nodeParam(r), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewRecordResponse(updated))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Records.Delete(r.Context(), nodeParam(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

// handleExec runs a statement sent by a peer's http driver against a node
// stored in this process.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	node := nodeParam(r)
	b, ok := s.deps.Backends[node]
	if _, remote := b.(*backend.HTTP); !ok || remote {
		s.writeJSON(w, http.StatusNotFound, backend.ExecResponse{Error: fmt.Sprintf("node %s is not stored here", node)})
		return
	}

	var stmt backend.Statement
	if err := s.decode(w, r, &stmt); err != nil {
		s.writeJSON(w, http.StatusBadRequest, backend.ExecResponse{Error: err.Error()})
		return
	}

	res, err := b.Execute(r.Context(), stmt)
	if errors.Is(err, backend.ErrQueryMismatch) {
		slog.Warn("exec refused", "node", node, "kind", stmt.Kind, "query", stmt.Query)
		s.writeJSON(w, http.StatusBadRequest, backend.ExecResponse{Error: err.Error()})
		return
	}
	if err != nil {
		slog.Warn("exec failed", "node", node, "statement", stmt.String(), "error", err)
		s.writeJSON(w, http.StatusBadGateway, backend.ExecResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, backend.ExecResponse{Result: res})
}
