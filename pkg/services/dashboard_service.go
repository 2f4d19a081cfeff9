package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
	"github.com/velocityiq/velocityiq-engine/pkg/cache"
	"github.com/velocityiq/velocityiq-engine/pkg/config"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
	"github.com/velocityiq/velocityiq-engine/pkg/notify"
	"github.com/velocityiq/velocityiq-engine/pkg/repositories"
	"github.com/velocityiq/velocityiq-engine/pkg/stock"
)

// Cache keys for the read-through dashboard endpoints. The pipeline
// invalidates both after every successful run.
const (
	cacheKeyStockStatus  = "dashboard:stock-status"
	cacheKeyDemandTrends = "dashboard:demand-trends"
)

// Fixed lookback and lookahead windows for the dashboard views, in days.
const (
	chartHistoryDays  = 30
	chartForecastDays = 14
	trendWindowDays   = 14
	maxForecastDays   = 90
)

// DashboardService assembles the read models behind the dashboard API.
// It computes nothing the rule engine owns; status and aggregation math
// come from pkg/stock so the table and the alerts can never disagree.
type DashboardService interface {
	Overview(ctx context.Context) (*models.DashboardOverview, error)
	StockStatus(ctx context.Context) ([]*models.StockStatusRow, error)
	Alerts(ctx context.Context, limit int) ([]*models.AlertWithContext, error)

	// ResolveAlert marks an open alert resolved by hand. Returns
	// ErrNotFound for unknown ids and ErrConflict when already resolved.
	ResolveAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error)

	// Forecasts lists joined forecast rows from today through today+days;
	// days is clamped to [1, 90].
	Forecasts(ctx context.Context, days int) ([]*models.ForecastListRow, error)

	DemandTrends(ctx context.Context) ([]*models.TrendPoint, error)

	// ChartData returns per-SKU history and forecast series. Returns
	// ErrNotFound for an unknown SKU.
	ChartData(ctx context.Context, sku string) (*models.ChartData, error)
}

type dashboardService struct {
	products   repositories.ProductRepository
	txns       repositories.TransactionRepository
	forecasts  repositories.ForecastRepository
	alerts     repositories.AlertRepository
	runs       ForecastService
	events     notify.Sink
	cache      *cache.Cache
	cfg        *config.DashboardConfig
	staleAfter time.Duration
	thresholds stock.Thresholds
	logger     *zap.Logger
}

// NewDashboardService creates the dashboard read service. responseCache may
// be nil, in which case every read goes to Postgres. staleAfter derives from
// the scheduler cadence: data older than two intervals is flagged stale; a
// disabled scheduler disables the age check.
func NewDashboardService(
	products repositories.ProductRepository,
	txns repositories.TransactionRepository,
	forecasts repositories.ForecastRepository,
	alerts repositories.AlertRepository,
	runs ForecastService,
	events notify.Sink,
	responseCache *cache.Cache,
	cfg *config.DashboardConfig,
	scheduler *config.SchedulerConfig,
	thresholds stock.Thresholds,
	logger *zap.Logger,
) DashboardService {
	if events == nil {
		events = notify.Fanout(nil)
	}
	var staleAfter time.Duration
	if scheduler != nil && scheduler.IntervalMinutes > 0 {
		staleAfter = 2 * time.Duration(scheduler.IntervalMinutes) * time.Minute
	}
	return &dashboardService{
		products:   products,
		txns:       txns,
		forecasts:  forecasts,
		alerts:     alerts,
		runs:       runs,
		events:     events,
		cache:      responseCache,
		cfg:        cfg,
		staleAfter: staleAfter,
		thresholds: thresholds,
		logger:     logger.Named("dashboard"),
	}
}

var _ DashboardService = (*dashboardService)(nil)

func (s *dashboardService) Overview(ctx context.Context) (*models.DashboardOverview, error) {
	total, err := s.products.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	lowStock, err := s.products.LowStockCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count low stock products: %w", err)
	}

	critical, err := s.alerts.CountOpenCritical(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count critical alerts: %w", err)
	}

	value, err := s.products.TotalInventoryValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute inventory value: %w", err)
	}

	records, err := s.forecasts.CountUpcoming(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count forecast records: %w", err)
	}

	lastRun, failed, err := s.lastForecastRun(ctx)
	if err != nil {
		return nil, err
	}

	return &models.DashboardOverview{
		TotalProducts:       total,
		LowStockProducts:    lowStock,
		CriticalAlerts:      critical,
		TotalInventoryValue: value.InexactFloat64(),
		ForecastRecords:     records,
		LastUpdated:         time.Now().UTC(),
		LastForecastRun:     lastRun,
		ForecastStale:       s.isStale(lastRun, failed),
	}, nil
}

// lastForecastRun reports when forecasts were last produced and whether the
// most recent attempt failed. The in-process run record wins; after a restart
// it falls back to the newest stored forecast row.
func (s *dashboardService) lastForecastRun(ctx context.Context) (*time.Time, bool, error) {
	var lastRun *time.Time
	failed := false

	if run := s.runs.LastRun(); run != nil {
		failed = run.Status == models.RunFailed
		if run.Status == models.RunCompleted && run.CompletedAt != nil {
			lastRun = run.CompletedAt
		}
	}
	if lastRun == nil {
		stored, err := s.forecasts.LatestCreatedAt(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find latest forecast: %w", err)
		}
		lastRun = stored
	}
	return lastRun, failed, nil
}

func (s *dashboardService) isStale(lastRun *time.Time, failed bool) bool {
	if failed || lastRun == nil {
		return true
	}
	if s.staleAfter <= 0 {
		return false
	}
	return time.Since(*lastRun) > s.staleAfter
}

func (s *dashboardService) StockStatus(ctx context.Context) ([]*models.StockStatusRow, error) {
	var cached []*models.StockStatusRow
	if s.cache.Get(ctx, cacheKeyStockStatus, &cached) {
		return cached, nil
	}

	products, err := s.products.ListWithSuppliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	from := midnightUTC(time.Now()).AddDate(0, 0, -avgDemandDays)
	averages, err := s.forecasts.AvgPredictedByProduct(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to load demand averages: %w", err)
	}

	rows := make([]*models.StockStatusRow, 0, len(products))
	for _, p := range products {
		avg := averages[p.ID]
		days := stock.DaysUntilStockout(p.CurrentStock, avg)

		status, err := stock.Classify(p.CurrentStock, p.ReorderPoint, days, s.thresholds)
		if err != nil {
			s.logger.Warn("skipping unclassifiable product",
				zap.String("sku", p.SKU),
				zap.Error(err))
			continue
		}

		row := &models.StockStatusRow{
			ID:             p.ID,
			ProductName:    p.Name,
			SKU:            p.SKU,
			Category:       p.Category,
			CurrentStock:   p.CurrentStock,
			ReorderPoint:   p.ReorderPoint,
			UnitCost:       p.UnitCost.InexactFloat64(),
			AvgDailyDemand: round2(avg),
			StockStatus:    status,
		}
		if days != nil {
			rounded := round1(*days)
			row.DaysUntilStockout = &rounded
		}
		if p.Supplier != nil {
			row.SupplierName = &p.Supplier.Name
			row.LeadTimeDays = &p.Supplier.LeadTimeDays
			row.ReliabilityScore = p.Supplier.ReliabilityScore
		}
		rows = append(rows, row)
	}

	s.cache.Set(ctx, cacheKeyStockStatus, rows)
	return rows, nil
}

func (s *dashboardService) Alerts(ctx context.Context, limit int) ([]*models.AlertWithContext, error) {
	if limit <= 0 {
		limit = s.cfg.AlertLimit
	}
	alerts, err := s.alerts.ListOpen(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

func (s *dashboardService) ResolveAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	alert, err := s.alerts.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("alert resolved manually",
		zap.String("alert_id", alert.ID.String()),
		zap.String("type", string(alert.Type)))
	s.events.Publish(ctx, notify.NewEvent(notify.EventAlertResolved, alert))

	return alert, nil
}

func (s *dashboardService) Forecasts(ctx context.Context, days int) ([]*models.ForecastListRow, error) {
	if days < 1 {
		days = 1
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}

	today := midnightUTC(time.Now())
	forecasts, err := s.forecasts.ListWithProducts(ctx, today, today.AddDate(0, 0, days))
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}

	rows := make([]*models.ForecastListRow, 0, len(forecasts))
	for _, f := range forecasts {
		rows = append(rows, &models.ForecastListRow{
			ProductName:     f.ProductName,
			SKU:             f.SKU,
			Category:        f.Category,
			CurrentStock:    f.CurrentStock,
			ForecastDate:    f.Date.Format("2006-01-02"),
			Predicted:       f.Predicted,
			Lower:           f.Lower,
			Upper:           f.Upper,
			ForecastCreated: f.CreatedAt,
		})
	}
	return rows, nil
}

func (s *dashboardService) DemandTrends(ctx context.Context) ([]*models.TrendPoint, error) {
	var cached []*models.TrendPoint
	if s.cache.Get(ctx, cacheKeyDemandTrends, &cached) {
		return cached, nil
	}

	from := midnightUTC(time.Now()).AddDate(0, 0, -trendWindowDays)
	forecasts, err := s.forecasts.ListWithProductsSince(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}

	// Group into per-product series, keeping first-appearance order. Rows
	// arrive date-ascending, so each series is already chronological.
	order := make([]uuid.UUID, 0)
	series := make(map[uuid.UUID][]*models.ForecastWithProduct)
	for _, f := range forecasts {
		if _, seen := series[f.ProductID]; !seen {
			order = append(order, f.ProductID)
		}
		series[f.ProductID] = append(series[f.ProductID], f)
	}

	trends := make([]*models.TrendPoint, 0, len(forecasts))
	for _, productID := range order {
		for i, f := range series[productID] {
			point := &models.TrendPoint{
				ProductName: f.ProductName,
				SKU:         f.SKU,
				Category:    f.Category,
				Date:        f.Date.Format("2006-01-02"),
				Predicted:   round1(f.Predicted),
				Trend:       models.TrendStable,
			}
			if i > 0 {
				priorIdx := i - trendCompareOffset
				if priorIdx < 0 {
					priorIdx = 0
				}
				prior := series[productID][priorIdx].Predicted

				weekAgo := round1(prior)
				point.WeekAgo = &weekAgo

				change := 0.0
				if prior > 0 {
					change = (f.Predicted - prior) / prior * 100
				}
				roundedChange := round1(change)
				point.ChangePct = &roundedChange
				point.Trend = s.trendFor(change)
			}
			trends = append(trends, point)
		}
	}

	s.cache.Set(ctx, cacheKeyDemandTrends, trends)
	return trends, nil
}

// trendCompareOffset is how many points back each trend sample looks.
const trendCompareOffset = 7

// trendFor labels a percentage change using the same threshold that trips
// the demand spike alert, so the trends view and the alert feed agree on
// what counts as movement.
func (s *dashboardService) trendFor(changePct float64) models.TrendDirection {
	return models.TrendDirection(stock.TrendDirection(changePct, s.thresholds))
}

func (s *dashboardService) ChartData(ctx context.Context, sku string) (*models.ChartData, error) {
	product, err := s.products.GetBySKU(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to look up product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product %s", apperrors.ErrNotFound, sku)
	}

	history, err := s.txns.DailyOutboundDemand(ctx, product.ID, chartHistoryDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load demand history: %w", err)
	}

	today := midnightUTC(time.Now())
	forecasts, err := s.forecasts.ListForProduct(ctx, product.ID, today, today.AddDate(0, 0, chartForecastDays))
	if err != nil {
		return nil, fmt.Errorf("failed to load forecasts: %w", err)
	}

	chart := &models.ChartData{
		ProductSKU: product.SKU,
		Historical: make([]models.ChartHistoryPoint, 0, len(history)),
		Forecasts:  make([]models.ChartForecastPoint, 0, len(forecasts)),
	}
	for _, d := range history {
		chart.Historical = append(chart.Historical, models.ChartHistoryPoint{
			Date:         d.Date.Format("2006-01-02"),
			ActualDemand: d.Demand,
		})
	}
	for _, f := range forecasts {
		chart.Forecasts = append(chart.Forecasts, models.ChartForecastPoint{
			Date:      f.Date.Format("2006-01-02"),
			Predicted: f.Predicted,
			Lower:     f.Lower,
			Upper:     f.Upper,
		})
	}
	return chart, nil
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
