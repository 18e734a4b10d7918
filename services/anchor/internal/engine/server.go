package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redbco/redb-federation/pkg/health"
)

type Server struct {
	engine *Engine
	router *mux.Router
}

func NewServer(engine *Engine) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	// CORS middleware
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			atomic.AddInt64(&s.engine.metrics.requestsProcessed, 1)
			next.ServeHTTP(w, r)
			if s.engine.logger != nil {
				s.engine.logger.Debugf("%s %s handled in %s", r.Method, r.URL.Path, time.Since(start))
			}
		})
	})
}

func (s *Server) setupRoutes() {
	// Global OPTIONS handler for CORS preflight requests
	s.router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodOptions)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.engine.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	fed := s.router.PathPrefix("/federation").Subrouter()
	fed.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	fed.HandleFunc("/plan", s.handlePlan).Methods(http.MethodPost)
	fed.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	fed.HandleFunc("/stream", s.handleStream).Methods(http.MethodPost)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := s.engine.CheckSessions(ctx)
	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSONResponse(w, code, HealthResponse{
		Status:      status,
		LastHealthy: s.engine.checker.GetLastHealthyTime(),
		Checks:      s.engine.checker.GetAllChecks(),
		Metrics:     s.engine.GetMetrics(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, SessionsResponse{Sessions: s.engine.sessions.List()})
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		if s.engine.logger != nil {
			s.engine.logger.Errorf("Failed to encode JSON response: %v", err)
		}
	}
}
