package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/auth"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
	"github.com/velocityiq/velocityiq-engine/pkg/services"
)

// DashboardHandler handles the dashboard read API and alert resolution.
type DashboardHandler struct {
	dashboard services.DashboardService
	insights  services.InsightsService
	logger    *zap.Logger
}

// NewDashboardHandler creates a new dashboard handler. insights may be nil,
// in which case the insights endpoint reports the feature as disabled.
func NewDashboardHandler(dashboard services.DashboardService, insights services.InsightsService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		insights:  insights,
		logger:    logger,
	}
}

// RegisterRoutes registers the dashboard handler's routes on the given mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/dashboard"

	mux.HandleFunc("GET "+base+"/overview", authMiddleware.RequireAuth(h.Overview))
	mux.HandleFunc("GET "+base+"/alerts", authMiddleware.RequireAuth(h.Alerts))
	mux.HandleFunc("POST "+base+"/alerts/{alert_id}/resolve", authMiddleware.RequireAuth(h.ResolveAlert))
	mux.HandleFunc("GET "+base+"/stock-status", authMiddleware.RequireAuth(h.StockStatus))
	mux.HandleFunc("GET "+base+"/forecasts", authMiddleware.RequireAuth(h.Forecasts))
	mux.HandleFunc("GET "+base+"/demand-trends", authMiddleware.RequireAuth(h.DemandTrends))
	mux.HandleFunc("GET "+base+"/chart-data/{sku}", authMiddleware.RequireAuth(h.ChartData))
	mux.HandleFunc("GET "+base+"/insights", authMiddleware.RequireAuth(h.Insights))
}

type alertsResponse struct {
	Alerts []*models.AlertWithContext `json:"alerts"`
}

type stockStatusResponse struct {
	Products []*models.StockStatusRow `json:"products"`
}

type forecastsResponse struct {
	Forecasts []*models.ForecastListRow `json:"forecasts"`
}

type trendsResponse struct {
	Trends []*models.TrendPoint `json:"trends"`
}

// Overview handles GET /api/dashboard/overview
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.dashboard.Overview(r.Context())
	if err != nil {
		h.logger.Error("Failed to build dashboard overview", zap.Error(err))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, overview); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Alerts handles GET /api/dashboard/alerts
func (h *DashboardHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Limit must be an integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	alerts, err := h.dashboard.Alerts(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.Error(err))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if alerts == nil {
		alerts = make([]*models.AlertWithContext, 0)
	}

	if err := WriteJSON(w, http.StatusOK, alertsResponse{Alerts: alerts}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ResolveAlert handles POST /api/dashboard/alerts/{alert_id}/resolve
func (h *DashboardHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertIDStr := r.PathValue("alert_id")
	alertID, err := uuid.Parse(alertIDStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_alert_id", "Invalid alert ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	alert, err := h.dashboard.ResolveAlert(r.Context(), alertID)
	if err != nil {
		h.logger.Error("Failed to resolve alert", zap.Error(err), zap.String("alert_id", alertID.String()))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, alert); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// StockStatus handles GET /api/dashboard/stock-status
func (h *DashboardHandler) StockStatus(w http.ResponseWriter, r *http.Request) {
	products, err := h.dashboard.StockStatus(r.Context())
	if err != nil {
		h.logger.Error("Failed to build stock status", zap.Error(err))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if products == nil {
		products = make([]*models.StockStatusRow, 0)
	}

	if err := WriteJSON(w, http.StatusOK, stockStatusResponse{Products: products}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Forecasts handles GET /api/dashboard/forecasts
func (h *DashboardHandler) Forecasts(w http.ResponseWriter, r *http.Request) {
	days := 14
	if s := r.URL.Query().Get("days"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_days", "Days must be an integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		days = parsed
	}

	forecasts, err := h.dashboard.Forecasts(r.Context(), days)
	if err != nil {
		h.logger.Error("Failed to list forecasts", zap.Error(err))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if forecasts == nil {
		forecasts = make([]*models.ForecastListRow, 0)
	}

	if err := WriteJSON(w, http.StatusOK, forecastsResponse{Forecasts: forecasts}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DemandTrends handles GET /api/dashboard/demand-trends
func (h *DashboardHandler) DemandTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.dashboard.DemandTrends(r.Context())
	if err != nil {
		h.logger.Error("Failed to build demand trends", zap.Error(err))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if trends == nil {
		trends = make([]*models.TrendPoint, 0)
	}

	if err := WriteJSON(w, http.StatusOK, trendsResponse{Trends: trends}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ChartData handles GET /api/dashboard/chart-data/{sku}
func (h *DashboardHandler) ChartData(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")

	chart, err := h.dashboard.ChartData(r.Context(), sku)
	if err != nil {
		h.logger.Error("Failed to build chart data", zap.Error(err), zap.String("sku", sku))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, chart); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Insights handles GET /api/dashboard/insights
func (h *DashboardHandler) Insights(w http.ResponseWriter, r *http.Request) {
	if h.insights == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Insights digest is not enabled"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	digest, err := h.insights.Digest(r.Context())
	if err != nil {
		h.logger.Error("Failed to generate insights digest", zap.Error(err))
		status, code := errorStatus(err)
		if err := ErrorResponse(w, status, code, err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, digest); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
