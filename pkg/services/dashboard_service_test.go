package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
	"github.com/velocityiq/velocityiq-engine/pkg/config"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
	"github.com/velocityiq/velocityiq-engine/pkg/notify"
	"github.com/velocityiq/velocityiq-engine/pkg/stock"
)

type dashboardFixture struct {
	products  *mockProductRepo
	txns      *mockTransactionRepo
	forecasts *mockForecastRepo
	alerts    *mockAlertStore
	runs      *stubRunTracker
	events    *captureSink
	service   DashboardService
}

func newDashboardFixture() *dashboardFixture {
	f := &dashboardFixture{
		products:  &mockProductRepo{},
		txns:      &mockTransactionRepo{},
		forecasts: &mockForecastRepo{},
		alerts:    &mockAlertStore{},
		runs:      &stubRunTracker{},
		events:    &captureSink{},
	}
	f.service = NewDashboardService(
		f.products,
		f.txns,
		f.forecasts,
		f.alerts,
		f.runs,
		f.events,
		nil,
		&config.DashboardConfig{AlertLimit: 20, CacheTTLSeconds: 30},
		&config.SchedulerConfig{IntervalMinutes: 360},
		stock.DefaultThresholds(),
		zap.NewNop(),
	)
	return f
}

func dashboardProduct(name, sku string, currentStock, reorderPoint int, supplier *models.Supplier) *models.ProductWithSupplier {
	p := &models.ProductWithSupplier{
		Product: models.Product{
			ID:           uuid.New(),
			SKU:          sku,
			Name:         name,
			Category:     "Electronics",
			UnitCost:     decimal.NewFromFloat(12.5),
			CurrentStock: currentStock,
			ReorderPoint: reorderPoint,
		},
		Supplier: supplier,
	}
	if supplier != nil {
		p.SupplierID = &supplier.ID
	}
	return p
}

func trendRow(productID uuid.UUID, name, sku string, date time.Time, predicted float64) *models.ForecastWithProduct {
	return &models.ForecastWithProduct{
		ForecastPoint: models.ForecastPoint{
			ProductID: productID,
			Date:      date,
			Predicted: predicted,
		},
		ProductName: name,
		SKU:         sku,
		Category:    "Electronics",
	}
}

func TestDashboardService_Overview(t *testing.T) {
	f := newDashboardFixture()
	f.products.products = []*models.ProductWithSupplier{
		dashboardProduct("Widget", "WID-001", 100, 20, nil),
		dashboardProduct("Gadget", "GAD-001", 5, 10, nil),
	}
	f.products.lowStock = 1
	f.products.inventoryValue = decimal.NewFromFloat(1312.5)
	f.alerts.openCritical = 3
	f.forecasts.upcoming = 28

	completedAt := time.Now().UTC().Add(-time.Hour)
	f.runs.run = &models.ForecastRun{
		Status:      models.RunCompleted,
		CompletedAt: &completedAt,
	}

	overview, err := f.service.Overview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, overview.TotalProducts)
	assert.Equal(t, 1, overview.LowStockProducts)
	assert.Equal(t, 3, overview.CriticalAlerts)
	assert.InDelta(t, 1312.5, overview.TotalInventoryValue, 0.001)
	assert.Equal(t, 28, overview.ForecastRecords)
	require.NotNil(t, overview.LastForecastRun)
	assert.Equal(t, completedAt, *overview.LastForecastRun)
	assert.False(t, overview.ForecastStale, "one hour old is well inside the freshness window")
	assert.WithinDuration(t, time.Now().UTC(), overview.LastUpdated, time.Minute)
}

func TestDashboardService_Overview_StaleWhenRunTooOld(t *testing.T) {
	f := newDashboardFixture()
	completedAt := time.Now().UTC().Add(-13 * time.Hour)
	f.runs.run = &models.ForecastRun{
		Status:      models.RunCompleted,
		CompletedAt: &completedAt,
	}

	overview, err := f.service.Overview(context.Background())
	require.NoError(t, err)

	assert.True(t, overview.ForecastStale, "older than two scheduler intervals")
}

func TestDashboardService_Overview_StaleWhenLastRunFailed(t *testing.T) {
	f := newDashboardFixture()
	f.runs.run = &models.ForecastRun{Status: models.RunFailed}
	stored := time.Now().UTC().Add(-time.Hour)
	f.forecasts.latest = &stored

	overview, err := f.service.Overview(context.Background())
	require.NoError(t, err)

	require.NotNil(t, overview.LastForecastRun, "failed run falls back to the stored forecast time")
	assert.Equal(t, stored, *overview.LastForecastRun)
	assert.True(t, overview.ForecastStale)
}

func TestDashboardService_Overview_FallsBackToStoredForecasts(t *testing.T) {
	f := newDashboardFixture()
	stored := time.Now().UTC().Add(-30 * time.Minute)
	f.forecasts.latest = &stored

	overview, err := f.service.Overview(context.Background())
	require.NoError(t, err)

	require.NotNil(t, overview.LastForecastRun)
	assert.Equal(t, stored, *overview.LastForecastRun)
	assert.False(t, overview.ForecastStale)
}

func TestDashboardService_Overview_StaleBeforeAnyRun(t *testing.T) {
	f := newDashboardFixture()

	overview, err := f.service.Overview(context.Background())
	require.NoError(t, err)

	assert.Nil(t, overview.LastForecastRun)
	assert.True(t, overview.ForecastStale)
}

func TestDashboardService_StockStatus(t *testing.T) {
	f := newDashboardFixture()
	supplier := &models.Supplier{
		ID:               uuid.New(),
		Name:             "Acme Supply Co",
		LeadTimeDays:     14,
		ReliabilityScore: 0.95,
	}
	lowStock := dashboardProduct("Wireless Headphones", "WH-001", 50, 10, supplier)
	noDemand := dashboardProduct("USB Cable", "UC-001", 30, 10, nil)
	f.products.products = []*models.ProductWithSupplier{lowStock, noDemand}
	f.forecasts.averages = map[uuid.UUID]float64{
		lowStock.ID: 8.333333,
	}

	rows, err := f.service.StockStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, lowStock.ID, first.ID)
	assert.Equal(t, "Wireless Headphones", first.ProductName)
	assert.Equal(t, "WH-001", first.SKU)
	assert.Equal(t, "Electronics", first.Category)
	assert.Equal(t, 50, first.CurrentStock)
	assert.Equal(t, 10, first.ReorderPoint)
	assert.InDelta(t, 12.5, first.UnitCost, 0.001)
	assert.InDelta(t, 8.33, first.AvgDailyDemand, 0.001, "average rounds to 2 decimal places")
	require.NotNil(t, first.DaysUntilStockout)
	assert.InDelta(t, 6.0, *first.DaysUntilStockout, 0.001, "days round to 1 decimal place")
	assert.Equal(t, stock.StatusLowStock, first.StockStatus)
	require.NotNil(t, first.SupplierName)
	assert.Equal(t, "Acme Supply Co", *first.SupplierName)
	require.NotNil(t, first.LeadTimeDays)
	assert.Equal(t, 14, *first.LeadTimeDays)
	assert.InDelta(t, 0.95, first.ReliabilityScore, 0.001)

	second := rows[1]
	assert.InDelta(t, 0, second.AvgDailyDemand, 0.001)
	assert.Nil(t, second.DaysUntilStockout, "no predicted demand means no stockout projection")
	assert.Equal(t, stock.StatusOK, second.StockStatus)
	assert.Nil(t, second.SupplierName)
	assert.Nil(t, second.LeadTimeDays)
	assert.InDelta(t, 0, second.ReliabilityScore, 0.001)
}

func TestDashboardService_StockStatus_SkipsUnclassifiableProducts(t *testing.T) {
	f := newDashboardFixture()
	broken := dashboardProduct("Ghost", "GH-001", -5, 10, nil)
	healthy := dashboardProduct("Widget", "WID-001", 100, 20, nil)
	f.products.products = []*models.ProductWithSupplier{broken, healthy}

	rows, err := f.service.StockStatus(context.Background())
	require.NoError(t, err)

	require.Len(t, rows, 1, "negative stock cannot be classified and is dropped from the table")
	assert.Equal(t, "WID-001", rows[0].SKU)
}

func TestDashboardService_Alerts_DefaultsLimit(t *testing.T) {
	f := newDashboardFixture()
	for i := 0; i < 25; i++ {
		f.alerts.open = append(f.alerts.open, &models.AlertWithContext{
			Alert: models.Alert{ID: uuid.New(), Type: models.AlertStockLow},
		})
	}

	alerts, err := f.service.Alerts(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 20, "zero limit falls back to the configured default")

	alerts, err = f.service.Alerts(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, alerts, 5)
}

func TestDashboardService_ResolveAlert_PublishesEvent(t *testing.T) {
	f := newDashboardFixture()
	resolved := &models.Alert{
		ID:         uuid.New(),
		Type:       models.AlertStockLow,
		IsResolved: true,
	}
	f.alerts.resolved = resolved

	alert, err := f.service.ResolveAlert(context.Background(), resolved.ID)
	require.NoError(t, err)
	assert.Equal(t, resolved, alert)

	events := f.events.byType(notify.EventAlertResolved)
	require.Len(t, events, 1)
	assert.Equal(t, resolved, events[0].Data)
}

func TestDashboardService_ResolveAlert_NotFound(t *testing.T) {
	f := newDashboardFixture()
	f.alerts.resolveErr = fmt.Errorf("%w: alert", apperrors.ErrNotFound)

	_, err := f.service.ResolveAlert(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.events.events, "no event for a failed resolution")
}

func TestDashboardService_Forecasts(t *testing.T) {
	f := newDashboardFixture()
	created := time.Now().UTC().Add(-time.Hour)
	f.forecasts.withProducts = []*models.ForecastWithProduct{
		{
			ForecastPoint: models.ForecastPoint{
				ProductID: uuid.New(),
				Date:      time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
				Predicted: 11.25,
				Lower:     8.5,
				Upper:     14.75,
				CreatedAt: created,
			},
			ProductName:  "Wireless Headphones",
			SKU:          "WH-001",
			Category:     "Electronics",
			CurrentStock: 50,
		},
	}

	rows, err := f.service.Forecasts(context.Background(), 14)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "Wireless Headphones", row.ProductName)
	assert.Equal(t, "WH-001", row.SKU)
	assert.Equal(t, "Electronics", row.Category)
	assert.Equal(t, 50, row.CurrentStock)
	assert.Equal(t, "2026-08-26", row.ForecastDate)
	assert.InDelta(t, 11.25, row.Predicted, 0.001)
	assert.InDelta(t, 8.5, row.Lower, 0.001)
	assert.InDelta(t, 14.75, row.Upper, 0.001)
	assert.Equal(t, created, row.ForecastCreated)
}

func TestDashboardService_Forecasts_ClampsDays(t *testing.T) {
	f := newDashboardFixture()

	_, err := f.service.Forecasts(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 90*24*time.Hour, f.forecasts.listTo.Sub(f.forecasts.listFrom))

	_, err = f.service.Forecasts(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, f.forecasts.listTo.Sub(f.forecasts.listFrom))

	today := midnightUTC(time.Now())
	assert.Equal(t, today, f.forecasts.listFrom, "window starts at today's midnight")
}

func TestDashboardService_DemandTrends(t *testing.T) {
	f := newDashboardFixture()
	productID := uuid.New()
	start := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	values := []float64{10, 10, 10, 10, 10, 10, 10, 20, 5, 11.666}
	for i, v := range values {
		f.forecasts.withProducts = append(f.forecasts.withProducts,
			trendRow(productID, "Wireless Headphones", "WH-001", start.AddDate(0, 0, i), v))
	}

	trends, err := f.service.DemandTrends(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, len(values))

	first := trends[0]
	assert.Equal(t, "2026-08-10", first.Date)
	assert.Nil(t, first.WeekAgo, "first point has nothing to compare against")
	assert.Nil(t, first.ChangePct)
	assert.Equal(t, models.TrendStable, first.Trend)

	early := trends[3]
	require.NotNil(t, early.WeekAgo, "early points clamp to the series start")
	assert.InDelta(t, 10, *early.WeekAgo, 0.001)
	require.NotNil(t, early.ChangePct)
	assert.InDelta(t, 0, *early.ChangePct, 0.001)

	spike := trends[7]
	require.NotNil(t, spike.ChangePct)
	assert.InDelta(t, 100.0, *spike.ChangePct, 0.001)
	assert.Equal(t, models.TrendIncreasing, spike.Trend)

	dip := trends[8]
	require.NotNil(t, dip.ChangePct)
	assert.InDelta(t, -50.0, *dip.ChangePct, 0.001)
	assert.Equal(t, models.TrendDecreasing, dip.Trend)

	last := trends[9]
	assert.InDelta(t, 11.7, last.Predicted, 0.001, "predicted demand rounds to 1 decimal place")
	require.NotNil(t, last.ChangePct)
	assert.InDelta(t, 16.7, *last.ChangePct, 0.001)
	assert.Equal(t, models.TrendIncreasing, last.Trend)

	windowStart := midnightUTC(time.Now()).AddDate(0, 0, -14)
	assert.Equal(t, windowStart, f.forecasts.sinceFrom)
}

func TestDashboardService_DemandTrends_ZeroPriorYieldsZeroChange(t *testing.T) {
	f := newDashboardFixture()
	productID := uuid.New()
	start := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	values := []float64{0, 0, 0, 0, 0, 0, 0, 5}
	for i, v := range values {
		f.forecasts.withProducts = append(f.forecasts.withProducts,
			trendRow(productID, "Widget", "WID-001", start.AddDate(0, 0, i), v))
	}

	trends, err := f.service.DemandTrends(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, len(values))

	last := trends[7]
	require.NotNil(t, last.WeekAgo)
	assert.InDelta(t, 0, *last.WeekAgo, 0.001)
	require.NotNil(t, last.ChangePct)
	assert.InDelta(t, 0, *last.ChangePct, 0.001, "zero baseline reports no change, not a division error")
	assert.Equal(t, models.TrendStable, last.Trend)
}

func TestDashboardService_DemandTrends_GroupsInterleavedProducts(t *testing.T) {
	f := newDashboardFixture()
	productA := uuid.New()
	productB := uuid.New()
	day1 := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	f.forecasts.withProducts = []*models.ForecastWithProduct{
		trendRow(productA, "Widget", "WID-001", day1, 10),
		trendRow(productB, "Gadget", "GAD-001", day1, 20),
		trendRow(productA, "Widget", "WID-001", day2, 12),
		trendRow(productB, "Gadget", "GAD-001", day2, 18),
	}

	trends, err := f.service.DemandTrends(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, 4)

	var skus []string
	for _, point := range trends {
		skus = append(skus, point.SKU)
	}
	assert.Equal(t, []string{"WID-001", "WID-001", "GAD-001", "GAD-001"}, skus,
		"rows group per product in first-appearance order")
}

func TestDashboardService_ChartData(t *testing.T) {
	f := newDashboardFixture()
	product := dashboardProduct("Wireless Headphones", "WH-001", 50, 10, nil)
	f.products.products = []*models.ProductWithSupplier{product}
	f.txns.demand = map[uuid.UUID][]models.DailyDemand{
		product.ID: {
			{Date: time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC), Demand: 12},
			{Date: time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC), Demand: 9},
			{Date: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), Demand: 11},
		},
	}
	f.forecasts.forProduct = []*models.ForecastPoint{
		{
			ProductID: product.ID,
			Date:      time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
			Predicted: 10.5,
			Lower:     8.2,
			Upper:     13.1,
		},
	}

	chart, err := f.service.ChartData(context.Background(), "WH-001")
	require.NoError(t, err)

	assert.Equal(t, "WH-001", chart.ProductSKU)
	require.Len(t, chart.Historical, 3)
	assert.Equal(t, "2026-08-22", chart.Historical[0].Date)
	assert.InDelta(t, 12, chart.Historical[0].ActualDemand, 0.001)
	require.Len(t, chart.Forecasts, 1)
	assert.Equal(t, "2026-08-26", chart.Forecasts[0].Date)
	assert.InDelta(t, 10.5, chart.Forecasts[0].Predicted, 0.001)
	assert.InDelta(t, 8.2, chart.Forecasts[0].Lower, 0.001)
	assert.InDelta(t, 13.1, chart.Forecasts[0].Upper, 0.001)
}

func TestDashboardService_ChartData_EmptySeriesStayArrays(t *testing.T) {
	f := newDashboardFixture()
	product := dashboardProduct("Widget", "WID-001", 50, 10, nil)
	f.products.products = []*models.ProductWithSupplier{product}

	chart, err := f.service.ChartData(context.Background(), "WID-001")
	require.NoError(t, err)

	assert.NotNil(t, chart.Historical, "empty history must marshal as [] not null")
	assert.NotNil(t, chart.Forecasts)
	assert.Empty(t, chart.Historical)
	assert.Empty(t, chart.Forecasts)
}

func TestDashboardService_ChartData_UnknownSKU(t *testing.T) {
	f := newDashboardFixture()

	_, err := f.service.ChartData(context.Background(), "NOPE-404")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
