package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
)

// mockForecastService implements services.ForecastService for handler testing.
type mockForecastService struct {
	run *models.ForecastRun
	err error
}

func (m *mockForecastService) RunPipeline(_ context.Context) (*models.ForecastRun, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.run, nil
}

func (m *mockForecastService) LastRun() *models.ForecastRun {
	return m.run
}

func TestForecastHandler_Run_Success(t *testing.T) {
	completed := time.Now().UTC()
	svc := &mockForecastService{
		run: &models.ForecastRun{
			StartedAt:          completed.Add(-42 * time.Second),
			CompletedAt:        &completed,
			Status:             models.RunCompleted,
			ProductsTotal:      12,
			ProductsForecasted: 11,
			ForecastDays:       14,
			PointsStored:       154,
			AlertsCreated:      3,
			AlertsResolved:     1,
			DurationSeconds:    42,
		},
	}
	handler := NewForecastHandler(svc, zap.NewNop())

	req := httptest.NewRequest("POST", "/api/forecast/run", nil)
	rr := httptest.NewRecorder()

	handler.Run(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp models.ForecastRun
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, models.RunCompleted, resp.Status)
	assert.Equal(t, 11, resp.ProductsForecasted)
	assert.Equal(t, 154, resp.PointsStored)
	assert.Equal(t, 3, resp.AlertsCreated)
}

func TestForecastHandler_Run_AlreadyRunning(t *testing.T) {
	svc := &mockForecastService{err: apperrors.ErrAlreadyRunning}
	handler := NewForecastHandler(svc, zap.NewNop())

	req := httptest.NewRequest("POST", "/api/forecast/run", nil)
	rr := httptest.NewRecorder()

	handler.Run(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "run_in_progress", body["error"])
}

func TestForecastHandler_Run_UpstreamUnavailable(t *testing.T) {
	svc := &mockForecastService{
		err: fmt.Errorf("failed to fetch predictions: %w", apperrors.ErrUpstreamUnavailable),
	}
	handler := NewForecastHandler(svc, zap.NewNop())

	req := httptest.NewRequest("POST", "/api/forecast/run", nil)
	rr := httptest.NewRecorder()

	handler.Run(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "upstream_unavailable", body["error"])
}
