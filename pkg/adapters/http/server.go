package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aretw0/nodeweave"
	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/observability"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/sanitize"
	"github.com/aretw0/nodeweave/pkg/variables"
	"github.com/aretw0/nodeweave/pkg/walker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Engine is the part of nodeweave.Engine the HTTP API drives.
type Engine interface {
	Registry() *registry.Registry
	Variables() *variables.Store

	AddNode(nodeType string, config map[string]any) (domain.Node, error)
	RemoveNode(ctx context.Context, nodeID string) error
	Node(nodeID string) (domain.Node, error)
	Nodes() []domain.Node
	MoveNode(nodeID string, x, y float64) error
	SetConfig(nodeID string, config map[string]any) error
	ConfigureBindings(nodeID string, inputMappings, outputMappings map[string]string, extras nodeweave.Extras) error

	Connect(fromID, fromPort, toID, toPort string) (domain.Connection, error)
	Disconnect(connID string) error

	Execute(ctx context.Context, nodeID string) (*domain.Result, error)
	Resume(ctx context.Context, nodeID string, value any) (*domain.Result, error)
	Cancel(ctx context.Context, nodeID string) error
	Waiting() []string
	Walk(ctx context.Context, opts ...walker.Option) (*walker.Report, error)

	Export() *domain.GraphDocument
	Snapshot() *domain.GraphDocument
	Import(ctx context.Context, doc *domain.GraphDocument) error
}

// Server exposes one engine over a JSON API.
type Server struct {
	Engine  Engine
	Broker  *observability.Broker
	Metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithBroker enables the /events stream and graph change notifications.
// The broker's hooks must also be installed on the engine for node and
// variable events to appear.
func WithBroker(b *observability.Broker) Option {
	return func(s *Server) {
		s.Broker = b
	}
}

// WithMetrics mounts the Prometheus handler at /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.Metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/node-types", s.ListNodeTypes)

	r.Get("/graph", s.GetGraph)
	r.Put("/graph", s.PutGraph)

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", s.ListNodes)
		r.Post("/", s.CreateNode)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetNode)
			r.Patch("/", s.PatchNode)
			r.Delete("/", s.DeleteNode)
			r.Put("/bindings", s.PutBindings)
			r.Post("/execute", s.ExecuteNode)
			r.Post("/resume", s.ResumeNode)
			r.Post("/cancel", s.CancelNode)
		})
	})

	r.Post("/connections", s.CreateConnection)
	r.Delete("/connections/{id}", s.DeleteConnection)

	r.Route("/variables", func(r chi.Router) {
		r.Get("/", s.ListVariables)
		r.Post("/", s.CreateVariable)
		r.Get("/{name}", s.GetVariable)
		r.Put("/{name}", s.PutVariable)
		r.Delete("/{name}", s.DeleteVariable)
	})

	r.Get("/waiting", s.ListWaiting)
	r.Post("/walk", s.WalkGraph)

	if s.Broker != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "nodeweave-http",
		"version": strings.TrimSpace(nodeweave.Version),
	})
}

// ListNodeTypes handles the GET /node-types request.
func (s *Server) ListNodeTypes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Registry().Definitions())
}

// GetGraph handles the GET /graph request. Passing ?variables=true includes
// the variable store in the document.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("variables") == "true" {
		s.writeJSON(w, http.StatusOK, s.Engine.Snapshot())
		return
	}
	s.writeJSON(w, http.StatusOK, s.Engine.Export())
}

// PutGraph handles the PUT /graph request.
func (s *Server) PutGraph(w http.ResponseWriter, r *http.Request) {
	var doc domain.GraphDocument
	if !s.decode(w, r, &doc) {
		return
	}
	err := s.mutate(r.Context(), func() error {
		return s.Engine.Import(r.Context(), &doc)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Engine.Export())
}

// ListNodes handles the GET /nodes request.
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Nodes())
}

type createNodeRequest struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
}

// CreateNode handles the POST /nodes request.
func (s *Server) CreateNode(w http.ResponseWriter, r *http.Request) {
	var body createNodeRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}

	var node domain.Node
	err := s.mutate(r.Context(), func() error {
		n, err := s.Engine.AddNode(body.Type, body.Config)
		if err != nil {
			return err
		}
		if body.X != 0 || body.Y != 0 {
			if err := s.Engine.MoveNode(n.ID, body.X, body.Y); err != nil {
				return err
			}
		}
		node, err = s.Engine.Node(n.ID)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, node)
}

// GetNode handles the GET /nodes/{id} request.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.Engine.Node(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

type patchNodeRequest struct {
	Config   map[string]any   `json:"config"`
	Position *domain.Position `json:"position"`
}

// PatchNode handles the PATCH /nodes/{id} request.
func (s *Server) PatchNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body patchNodeRequest
	if !s.decode(w, r, &body) {
		return
	}
	err := s.mutate(r.Context(), func() error {
		if body.Config != nil {
			if err := s.Engine.SetConfig(id, body.Config); err != nil {
				return err
			}
		}
		if body.Position != nil {
			return s.Engine.MoveNode(id, body.Position.X, body.Position.Y)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.GetNode(w, r)
}

// DeleteNode handles the DELETE /nodes/{id} request.
func (s *Server) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.mutate(r.Context(), func() error {
		return s.Engine.RemoveNode(r.Context(), id)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bindingsRequest struct {
	InputMappings  map[string]string             `json:"inputMappings"`
	OutputMappings map[string]string             `json:"outputMappings"`
	CustomInputs   []string                      `json:"customInputs"`
	CustomOutputs  []string                      `json:"customOutputs"`
	MultiInputMode *domain.MultiInputMode        `json:"multiInputMode"`
	OutputParse    map[string]domain.ParseConfig `json:"outputParseConfig"`
}

// PutBindings handles the PUT /nodes/{id}/bindings request.
func (s *Server) PutBindings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body bindingsRequest
	if !s.decode(w, r, &body) {
		return
	}
	err := s.mutate(r.Context(), func() error {
		return s.Engine.ConfigureBindings(id, body.InputMappings, body.OutputMappings, nodeweave.Extras{
			CustomInputs:   body.CustomInputs,
			CustomOutputs:  body.CustomOutputs,
			MultiInputMode: body.MultiInputMode,
			OutputParse:    body.OutputParse,
		})
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.GetNode(w, r)
}

// ExecuteNode handles the POST /nodes/{id}/execute request.
// A failed behavior still answers with its result, under 422.
func (s *Server) ExecuteNode(w http.ResponseWriter, r *http.Request) {
	res, err := s.Engine.Execute(r.Context(), chi.URLParam(r, "id"))
	s.writeResult(w, res, err)
}

type resumeRequest struct {
	Value any `json:"value"`
}

// ResumeNode handles the POST /nodes/{id}/resume request.
func (s *Server) ResumeNode(w http.ResponseWriter, r *http.Request) {
	var body resumeRequest
	if !s.decode(w, r, &body) {
		return
	}

	// Sanitize Input (Global Policy)
	value, err := sanitize.Value(body.Value)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("Resume: Input rejected", "error", err)
		return
	}

	res, err := s.Engine.Resume(r.Context(), chi.URLParam(r, "id"), value)
	s.writeResult(w, res, err)
}

// CancelNode handles the POST /nodes/{id}/cancel request.
func (s *Server) CancelNode(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListWaiting handles the GET /waiting request.
func (s *Server) ListWaiting(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Waiting())
}

type walkRequest struct {
	Concurrency int `json:"concurrency"`
}

// WalkGraph handles the POST /walk request. The body is optional.
func (s *Server) WalkGraph(w http.ResponseWriter, r *http.Request) {
	var body walkRequest
	if r.ContentLength > 0 && !s.decode(w, r, &body) {
		return
	}
	var opts []walker.Option
	if body.Concurrency > 0 {
		opts = append(opts, walker.WithConcurrency(body.Concurrency))
	}
	report, err := s.Engine.Walk(r.Context(), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type connectionRequest struct {
	From domain.PortRef `json:"from"`
	To   domain.PortRef `json:"to"`
}

// CreateConnection handles the POST /connections request.
func (s *Server) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var body connectionRequest
	if !s.decode(w, r, &body) {
		return
	}
	var conn domain.Connection
	err := s.mutate(r.Context(), func() error {
		var err error
		conn, err = s.Engine.Connect(body.From.NodeID, body.From.Port, body.To.NodeID, body.To.Port)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, conn)
}

// DeleteConnection handles the DELETE /connections/{id} request.
// The id contains ':' and '>' and arrives escaped.
func (s *Server) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid connection id", http.StatusBadRequest)
		return
	}
	err = s.mutate(r.Context(), func() error {
		return s.Engine.Disconnect(id)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVariables handles the GET /variables request.
func (s *Server) ListVariables(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := variables.ListFilter{Search: q.Get("search")}
	if t := q.Get("type"); t != "" {
		vt, err := domain.ParseVarType(t)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Type = vt
	}
	s.writeJSON(w, http.StatusOK, s.Engine.Variables().List(filter))
}

type variableRequest struct {
	Name        string         `json:"name"`
	Type        domain.VarType `json:"type"`
	Value       any            `json:"value"`
	Description *string        `json:"description"`
}

// CreateVariable handles the POST /variables request.
func (s *Server) CreateVariable(w http.ResponseWriter, r *http.Request) {
	var body variableRequest
	if !s.decode(w, r, &body) {
		return
	}
	desc := ""
	if body.Description != nil {
		desc = *body.Description
	}
	v, err := s.Engine.Variables().Create(r.Context(), body.Name, body.Type, body.Value, desc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, v)
}

// GetVariable handles the GET /variables/{name} request.
// It does not trigger read confirmation.
func (s *Server) GetVariable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, ok := s.Engine.Variables().Peek(name)
	if !ok {
		s.writeError(w, &domain.NotFoundError{Kind: domain.KindVariable, ID: name})
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

// PutVariable handles the PUT /variables/{name} request.
func (s *Server) PutVariable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body variableRequest
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.Engine.Variables().Update(r.Context(), name, body.Value, body.Description); err != nil {
		s.writeError(w, err)
		return
	}
	s.GetVariable(w, r)
}

// DeleteVariable handles the DELETE /variables/{name} request.
func (s *Server) DeleteVariable(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Variables().Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeEvents handles the GET /events request (SSE).
// ?types=status_change,graph_change narrows the stream.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	var watch map[domain.EventType]bool
	if types := r.URL.Query().Get("types"); types != "" {
		watch = make(map[domain.EventType]bool)
		for _, t := range strings.Split(types, ",") {
			watch[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := s.Broker.Subscribe(32)
	defer cancel()

	s.logger.Info("SSE: Client subscribed", "request_id", middleware.GetReqID(r.Context()))
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if watch != nil && !watch[ev.Type] {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("SSE: encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// mutate runs fn and publishes the structural difference it made.
func (s *Server) mutate(_ context.Context, fn func() error) error {
	if s.Broker == nil {
		return fn()
	}
	before := s.Engine.Export()
	if err := fn(); err != nil {
		return err
	}
	diff := domain.Diff(before, s.Engine.Export())
	if diff != nil && !diff.IsEmpty() {
		s.Broker.Publish(observability.Event{Type: domain.EventGraphChange, Graph: diff})
	}
	return nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Invalid request body", "path", r.URL.Path, "error", err)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}

func (s *Server) writeResult(w http.ResponseWriter, res *domain.Result, err error) {
	var execErr *domain.ExecutionError
	if errors.As(err, &execErr) && res != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var (
		notFound   *domain.NotFoundError
		dupName    *domain.DuplicateNameError
		dupTarget  *domain.DuplicatePortTargetError
		running    *domain.AlreadyRunningError
		mismatch   *domain.TypeMismatchError
		execFailed *domain.ExecutionError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &dupName), errors.As(err, &dupTarget), errors.As(err, &running),
		errors.Is(err, domain.ErrNotWaiting):
		return http.StatusConflict
	case errors.As(err, &mismatch), errors.As(err, &execFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConfirmationDeclined):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}
