package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/auth"
	"github.com/velocityiq/velocityiq-engine/pkg/services"
)

// ForecastHandler handles manual pipeline triggering.
type ForecastHandler struct {
	forecastService services.ForecastService
	logger          *zap.Logger
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(forecastService services.ForecastService, logger *zap.Logger) *ForecastHandler {
	return &ForecastHandler{
		forecastService: forecastService,
		logger:          logger,
	}
}

// RegisterRoutes registers the forecast handler's routes on the given mux.
func (h *ForecastHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/forecast/run", authMiddleware.RequireAuth(h.Run))
}

// Run handles POST /api/forecast/run. The run executes synchronously and the
// response carries the full run summary; a concurrent run yields 503.
func (h *ForecastHandler) Run(w http.ResponseWriter, r *http.Request) {
	run, err := h.forecastService.RunPipeline(r.Context())
	if err != nil {
		h.logger.Error("Manual pipeline run failed", zap.Error(err))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, run); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
