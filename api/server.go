package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apphost/cloudflare"
	"apphost/manager"
	"apphost/topology"
)

// Server is the host's HTTP API: the resource graph, live resource state,
// ingress domains and metrics.
type Server struct {
	router    *mux.Router
	resources *ResourceHandler
	domains   *DomainHandler
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// NewServer creates the API for graph g. A nil gatherer serves the default registry.
func NewServer(g *topology.ResourceGraph, sm *manager.StateManager, cm *cloudflare.Manager, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router:    mux.NewRouter(),
		resources: NewResourceHandler(g, sm, logger),
		domains:   NewDomainHandler(cm, sm, logger),
		gatherer:  gatherer,
		logger:    logger.With("component", "api"),
	}
	s.routes()
	return s
}

// routes sets up the API routes
func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router.HandleFunc("/graph", s.resources.GetGraph).Methods(http.MethodGet)
	s.router.HandleFunc("/resources", s.resources.ListResources).Methods(http.MethodGet)
	s.router.HandleFunc("/resources/{name}", s.resources.GetResource).Methods(http.MethodGet)

	s.router.HandleFunc("/domains", s.domains.ListAllDomains).Methods(http.MethodGet)
	s.router.HandleFunc("/domains/{name}", s.domains.GetDomain).Methods(http.MethodGet)
	s.router.HandleFunc("/domains/{name}", s.domains.CreateDomain).Methods(http.MethodPost)
	s.router.HandleFunc("/domains/{name}", s.domains.DeleteDomain).Methods(http.MethodDelete)

	s.router.Use(s.loggingMiddleware)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// loggingMiddleware logs incoming requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "uri", r.RequestURI, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
