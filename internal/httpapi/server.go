package httpapi

import (
	"context"
	"net/http"

	"supportcore/internal/config"
	"supportcore/internal/memory"
	"supportcore/internal/monitoring"
	"supportcore/internal/pipeline"
	"supportcore/internal/tools"
	"supportcore/internal/workflow"
)

// ChatHandler is the subset of *pipeline.Pipeline the chat endpoint needs,
// narrowed to an interface so handler tests can stub it.
type ChatHandler interface {
	Handle(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// Server wires the REST surface to its collaborators and exposes the
// resulting routes via ServeHTTP.
type Server struct {
	mem      *memory.Manager
	handler  ChatHandler
	registry tools.Registry
	engine   *workflow.Engine
	health   *monitoring.HealthChecker
	metrics  *monitoring.Metrics
	alerts   *monitoring.Evaluator
	logger   *monitoring.Logger
	cfg      config.MemoryConfig

	mux *http.ServeMux
}

// Deps bundles every collaborator NewServer wires into routes.
type Deps struct {
	Memory   *memory.Manager
	Handler  ChatHandler
	Registry tools.Registry
	Engine   *workflow.Engine
	Health   *monitoring.HealthChecker
	Metrics  *monitoring.Metrics
	Alerts   *monitoring.Evaluator
	Logger   *monitoring.Logger
	Memcfg   config.MemoryConfig
}

// NewServer builds a Server and registers its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		mem:      deps.Memory,
		handler:  deps.Handler,
		registry: deps.Registry,
		engine:   deps.Engine,
		health:   deps.Health,
		metrics:  deps.Metrics,
		alerts:   deps.Alerts,
		logger:   deps.Logger,
		cfg:      deps.Memcfg,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleFetchSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/chat", s.handleChat)
	s.mux.HandleFunc("POST /v1/kb/search", s.handleKBSearch)
	s.mux.HandleFunc("POST /v1/tickets", s.handleTicket)
	s.mux.HandleFunc("POST /v1/workflows/execute", s.handleWorkflowExecute)
	s.mux.HandleFunc("GET /v1/workflows/executions/{execID}", s.handleWorkflowStatus)
	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /v1/metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /v1/alerts", s.handleAlerts)
}
