// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/config"
	"github.com/soroscan/soroscan/internal/ingest"
	"github.com/soroscan/soroscan/internal/metrics"
	"github.com/soroscan/soroscan/internal/quota"
	"github.com/soroscan/soroscan/internal/storage"
	"github.com/soroscan/soroscan/pkg/utils"
)

// HTTPServer exposes the SoroScan REST API
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	ingestor       *ingest.Ingestor
	limiter        *quota.Limiter
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	store storage.Storage,
	ingestor *ingest.Ingestor,
	limiter *quota.Limiter,
	metricsManager *metrics.Manager,
) *HTTPServer {
	server := &HTTPServer{
		config:         cfg,
		storage:        store,
		ingestor:       ingestor,
		limiter:        limiter,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
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

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// Health check endpoint
	if s.config.EnableHealth {
		s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	}

	// Metrics endpoint
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Contract endpoints
	api.HandleFunc("/contracts", s.listContractsHandler).Methods("GET")
	api.HandleFunc("/contracts", s.addContractHandler).Methods("POST")
	api.HandleFunc("/contracts/{id}", s.getContractHandler).Methods("GET")
	api.HandleFunc("/contracts/{id}", s.updateContractHandler).Methods("PUT")

	// Event endpoints, quota enforced per API key
	quotaed := api.NewRoute().Subrouter()
	quotaed.Use(s.quotaMiddleware)
	quotaed.HandleFunc("/contracts/{contract_id}/events", s.ingestEventsHandler).Methods("POST")
	quotaed.HandleFunc("/events", s.searchEventsHandler).Methods("GET")
	quotaed.HandleFunc("/events/{id}", s.getEventHandler).Methods("GET")

	// Alert rule endpoints
	api.HandleFunc("/rules", s.listRulesHandler).Methods("GET")
	api.HandleFunc("/rules", s.addRuleHandler).Methods("POST")
	api.HandleFunc("/rules/{id}", s.getRuleHandler).Methods("GET")
	api.HandleFunc("/rules/{id}", s.updateRuleHandler).Methods("PUT")
	api.HandleFunc("/rules/{id}", s.removeRuleHandler).Methods("DELETE")
	api.HandleFunc("/rules/{id}/executions", s.listExecutionsHandler).Methods("GET")

	// API key endpoints
	api.HandleFunc("/api-keys", s.listAPIKeysHandler).Methods("GET")
	api.HandleFunc("/api-keys", s.addAPIKeyHandler).Methods("POST")
	api.HandleFunc("/api-keys/{id}", s.revokeAPIKeyHandler).Methods("DELETE")
	api.HandleFunc("/contract-quotas", s.addContractQuotaHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Catch immediate binding errors before reporting success
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.storage.Ping(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response, mapping application error codes to
// HTTP status codes
func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := utils.ErrCodeInternal
	message := "Internal server error"

	if appErr, ok := err.(*utils.AppError); ok {
		code = appErr.Code
		message = appErr.Message
		switch appErr.Code {
		case utils.ErrCodeValidation:
			status = http.StatusBadRequest
		case utils.ErrCodeNotFound:
			status = http.StatusNotFound
		case utils.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case utils.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		}
	}

	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
