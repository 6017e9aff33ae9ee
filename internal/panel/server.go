package panel

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/expressions"
	"github.com/rendis/wfgraph/internal/logging"
	"github.com/rendis/wfgraph/internal/store"
	"github.com/rendis/wfgraph/internal/validation"
)

// RequestIDHeader carries the request id in and out of the API.
const RequestIDHeader = "X-Request-ID"

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Store     store.Store
	Engines   *expressions.Engines
	Validator *validation.WorkflowValidator
	Metrics   *Metrics
	Logger    *slog.Logger

	// DAGOptions apply to every graph the server builds.
	DAGOptions []dag.Option
}

// PanelServer serves the console's JSON API over the graph engine.
type PanelServer struct {
	deps    PanelDeps
	editLog *store.EditLog
}

// NewPanelServer creates a PanelServer. Store is required; the rest default.
func NewPanelServer(deps PanelDeps) (*PanelServer, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Engines == nil {
		engines, err := expressions.NewEngines()
		if err != nil {
			return nil, err
		}
		deps.Engines = engines
	}
	if deps.Validator == nil {
		v, err := validation.NewWorkflowValidator(deps.Engines)
		if err != nil {
			return nil, err
		}
		deps.Validator = v
	}

	return &PanelServer{
		deps:    deps,
		editLog: store.NewEditLog(deps.Store),
	}, nil
}

// Handler returns the HTTP handler for the API routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Stateless build.
	mux.HandleFunc("POST /api/graph", s.handleBuildGraph)

	// Definitions.
	mux.HandleFunc("GET /api/definitions", s.handleListDefinitions)
	mux.HandleFunc("POST /api/definitions", s.handleCreateDefinition)
	mux.HandleFunc("GET /api/definitions/{name}/{version}/graph", s.handleDefinitionGraph)
	mux.HandleFunc("GET /api/definitions/{name}/edits", s.handleDefinitionEdits)
	mux.HandleFunc("POST /api/definitions/edit", s.handleEditDefinition)

	// Expressions.
	mux.HandleFunc("POST /api/switch/preview", s.handlePreviewSwitch)
	mux.HandleFunc("POST /api/expressions/evaluate", s.handleEvaluate)

	// Executions.
	mux.HandleFunc("POST /api/executions", s.handleCreateExecution)
	mux.HandleFunc("GET /api/executions/{id}/graph", s.handleExecutionGraph)
	mux.HandleFunc("GET /api/executions/{id}/tasks", s.handleExecutionTasks)
	mux.HandleFunc("GET /api/executions/{id}/task", s.handleExecutionTask)
	mux.HandleFunc("GET /api/executions/{id}/resolve", s.handleResolve)
	mux.HandleFunc("GET /api/executions/{id}/siblings", s.handleSiblings)
	mux.HandleFunc("GET /api/executions/{id}/diagram", s.handleDiagram)

	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	return s.instrument(mux)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument assigns a request id, logs the request and records metrics.
func (s *PanelServer) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)
		r = r.WithContext(logging.WithRequestID(r.Context(), reqID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// The mux sets Pattern on the request it routed.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.deps.Metrics.observeRequest(route, r.Method, rec.status, elapsed)
		logging.LogWith(r.Context(), s.deps.Logger).Debug("request",
			"route", route, "status", rec.status, "duration", elapsed)
	})
}
