package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/blackmichael/bluesky-analyzer/internal/config"
	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

// Server is the HTTP server that exposes the stored posts table and its
// analysis.
type Server struct {
	cfg        *config.Config
	service    *domain.Service
	repo       domain.RecordRepository
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server over the given repository.
func NewServer(cfg *config.Config, service *domain.Service, repo domain.RecordRepository, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		repo:    repo,
		logger:  logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /posts", s.handlePosts)
	mux.HandleFunc("GET /report", s.handleReport)
	mux.HandleFunc("POST /report", s.handleSaveReport)
	mux.HandleFunc("GET /report/latest", s.handleLatestReport)
	return withLogging(s.logger, mux)
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	records, err := s.repo.ListRecords(r.Context())
	if err != nil {
		s.logger.Error("failed to list posts", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list posts")
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": records})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.AnalyzeStored(r.Context())
	if err != nil {
		s.logger.Error("failed to analyze posts", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to analyze posts")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSaveReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.AnalyzeStored(r.Context())
	if err != nil {
		s.logger.Error("failed to analyze posts", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to analyze posts")
		return
	}

	id, err := s.repo.SaveReport(r.Context(), report)
	if err != nil {
		s.logger.Error("failed to save report", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to save report")
		return
	}

	s.logger.Info("report saved", "id", id, "total_posts", report.TotalPosts)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "report": report})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	stored, err := s.repo.LatestReport(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "no report has been saved")
		return
	}
	if err != nil {
		s.logger.Error("failed to load latest report", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
