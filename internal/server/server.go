// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assistant-router/internal/common/config"
	"assistant-router/internal/common/logger"
	"assistant-router/internal/common/observability"
	"assistant-router/internal/models"
	"assistant-router/internal/orchestrator"
)

// Server is the thin HTTP boundary over the routing pipeline.
type Server struct {
	httpServer *http.Server
	service    *orchestrator.Service
	obs        *observability.Observability
	logger     logger.Logger
}

func New(cfg config.ServerConfig, service *orchestrator.Service, obs *observability.Observability, log logger.Logger) *Server {
	s := &Server{
		service: service,
		obs:     obs,
		logger:  log.With(map[string]interface{}{"component": "server"}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ask", s.handleAsk)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"address": s.httpServer.Addr,
	})
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Question == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	start := time.Now()
	resp := s.service.Ask(r.Context(), &req)

	status := "answered"
	if resp.Answer == orchestrator.Apology {
		status = "apology"
	}
	if s.obs != nil {
		s.obs.RecordRequest(r.Context(), status)
		s.obs.RecordRequestDuration(r.Context(), time.Since(start), status)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encoding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
