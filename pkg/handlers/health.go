package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/config"
)

// schemaVersion identifies the database schema generation served by this build.
const schemaVersion = "v2.0"

// RootResponse is the service banner returned at GET /.
type RootResponse struct {
	Message       string `json:"message"`
	Status        string `json:"status"`
	Version       string `json:"version"`
	SchemaVersion string `json:"schema_version"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	Service     string    `json:"service"`
	GoVersion   string    `json:"go_version"`
	Hostname    string    `json:"hostname"`
	Environment string    `json:"environment"`
}

// HealthHandler handles the root banner, health check, and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with the given configuration.
func NewHealthHandler(cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Root handles GET / requests with a service banner.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	response := RootResponse{
		Message:       "VelocityIQ Engine API",
		Status:        "running",
		Version:       h.cfg.Version,
		SchemaVersion: schemaVersion,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode root response", zap.Error(err))
	}
}

// Health handles GET /health requests.
// Returns a simple "ok" status for container health checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		Version:     h.cfg.Version,
		Service:     "velocityiq-engine",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
