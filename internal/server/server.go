package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/connection"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/internal/models"
	"github.com/smartdevs17/edough-upgrade-check/internal/storage"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// chainStats is implemented by chain connections that keep statistics
type chainStats interface {
	Stats() connection.ConnectionStats
}

// HTTPServer serves stored verification runs, health and metrics
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	chain          HealthChecker
	metricsManager *metrics.Manager
	version        string
	logger         *logrus.Entry
}

// NewHTTPServer creates a new HTTP server. chain and metricsManager may be nil.
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	chain HealthChecker,
	metricsManager *metrics.Manager,
	version string,
) *HTTPServer {
	server := &HTTPServer{
		config:         cfg,
		storage:        store,
		chain:          chain,
		metricsManager: metricsManager,
		version:        version,
		logger:         utils.Component("http_server"),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Handler exposes the router
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	}
	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
	}

	api.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.listRunsHandler).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.getRunHandler).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.deleteRunHandler).Methods(http.MethodDelete)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *HTTPServer) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.UpdateSystemMetrics()
		go s.systemMetricsUpdater(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Stop()
	}
}

func (s *HTTPServer) systemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.metricsManager.UpdateSystemMetrics()
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	healthy := true

	check := func(name string, err error) {
		if err != nil {
			healthy = false
			components[name] = err.Error()
			return
		}
		components[name] = "ok"
	}

	check("storage", s.storage.Ping())
	if s.chain != nil {
		check("chain", s.chain.HealthCheck(r.Context()))
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"version":    s.version,
		"components": components,
	})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.GetStorageStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
		return
	}

	response := map[string]interface{}{
		"timestamp":       time.Now().UTC(),
		"storage":         stats,
		"metrics_enabled": s.config.EnableMetrics,
	}
	if provider, ok := s.chain.(chainStats); ok {
		response["chain"] = provider.Stats()
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.RunFilter{
		Status: models.RunStatus(query.Get("status")),
		Limit:  50,
	}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid offset", err)
			return
		}
		filter.Offset = offset
	}

	runs, err := s.storage.ListRuns(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve runs", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"total":  len(runs),
	})
}

func (s *HTTPServer) getRunHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.storage.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStorageError(w, "Failed to retrieve run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *HTTPServer) deleteRunHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.storage.DeleteRun(r.Context(), id); err != nil {
		s.writeStorageError(w, "Failed to delete run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (s *HTTPServer) writeStorageError(w http.ResponseWriter, message string, err error) {
	if utils.IsCode(err, utils.ErrCodeNotFound) {
		s.writeError(w, http.StatusNotFound, "Run not found", err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, message, err)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
		}).WithError(err).Warn("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
