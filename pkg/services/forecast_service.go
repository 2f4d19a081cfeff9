package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
	"github.com/velocityiq/velocityiq-engine/pkg/cache"
	"github.com/velocityiq/velocityiq-engine/pkg/config"
	"github.com/velocityiq/velocityiq-engine/pkg/forecaster"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
	"github.com/velocityiq/velocityiq-engine/pkg/notify"
	"github.com/velocityiq/velocityiq-engine/pkg/repositories"
	"github.com/velocityiq/velocityiq-engine/pkg/retry"
	"github.com/velocityiq/velocityiq-engine/pkg/stock"
)

// Demand aggregation windows, in forecast days. avgDemandDays mirrors the
// trailing window the dashboard uses; accuracyWindowDays bounds how far back
// realized demand is compared against its prediction.
const (
	avgDemandDays      = 7
	accuracyWindowDays = 7
)

// emptyHistoryDemand seeds the series for products with no transaction
// history at all. Padding is deterministic; no synthetic noise.
const emptyHistoryDemand = 10.0

// ForecastService runs the demand forecasting pipeline end to end: history
// extraction, remote inference, forecast persistence, and the alert pass.
type ForecastService interface {
	// RunPipeline executes one run. Returns ErrAlreadyRunning while another
	// run is in flight.
	RunPipeline(ctx context.Context) (*models.ForecastRun, error)

	// LastRun returns a copy of the most recent run outcome, or nil before
	// the first run of this process.
	LastRun() *models.ForecastRun
}

type forecastService struct {
	products   repositories.ProductRepository
	txns       repositories.TransactionRepository
	forecasts  repositories.ForecastRepository
	engine     AlertEngine
	client     forecaster.ForecastClient
	events     notify.Sink
	cache      *cache.Cache
	cfg        *config.ForecasterConfig
	thresholds stock.Thresholds
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	lastRun *models.ForecastRun
}

// NewForecastService creates the pipeline service.
func NewForecastService(
	products repositories.ProductRepository,
	txns repositories.TransactionRepository,
	forecasts repositories.ForecastRepository,
	engine AlertEngine,
	client forecaster.ForecastClient,
	events notify.Sink,
	responseCache *cache.Cache,
	cfg *config.ForecasterConfig,
	thresholds stock.Thresholds,
	logger *zap.Logger,
) ForecastService {
	if events == nil {
		events = notify.Fanout(nil)
	}
	return &forecastService{
		products:   products,
		txns:       txns,
		forecasts:  forecasts,
		engine:     engine,
		client:     client,
		events:     events,
		cache:      responseCache,
		cfg:        cfg,
		thresholds: thresholds,
		logger:     logger.Named("forecast-pipeline"),
	}
}

var _ ForecastService = (*forecastService)(nil)

func (s *forecastService) RunPipeline(ctx context.Context) (*models.ForecastRun, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, apperrors.ErrAlreadyRunning
	}
	run := &models.ForecastRun{
		StartedAt:    time.Now().UTC(),
		Status:       models.RunRunning,
		ForecastDays: s.cfg.PredictionDays,
	}
	s.running = true
	s.lastRun = run
	s.mu.Unlock()

	s.logger.Info("Forecast run started", zap.Int("forecast_days", s.cfg.PredictionDays))

	err := s.runOnce(ctx, run)

	s.mu.Lock()
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.DurationSeconds = completed.Sub(run.StartedAt).Seconds()
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
	} else {
		run.Status = models.RunCompleted
	}
	summary := *run
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Forecast run failed",
			zap.Float64("duration_seconds", summary.DurationSeconds),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Forecast run completed",
		zap.Int("products_forecasted", summary.ProductsForecasted),
		zap.Int("points_stored", summary.PointsStored),
		zap.Int("alerts_created", summary.AlertsCreated),
		zap.Int("alerts_resolved", summary.AlertsResolved),
		zap.Float64("duration_seconds", summary.DurationSeconds))

	s.cache.Invalidate(ctx, cacheKeyStockStatus, cacheKeyDemandTrends)
	s.events.Publish(ctx, notify.NewEvent(notify.EventForecastCompleted, &summary))

	return &summary, nil
}

func (s *forecastService) LastRun() *models.ForecastRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	snapshot := *s.lastRun
	return &snapshot
}

// updateRun mutates the live run record under the service lock so LastRun
// callers never observe a torn snapshot.
func (s *forecastService) updateRun(run *models.ForecastRun, fn func(*models.ForecastRun)) {
	s.mu.Lock()
	fn(run)
	s.mu.Unlock()
}

func (s *forecastService) runOnce(ctx context.Context, run *models.ForecastRun) error {
	products, err := s.products.ListWithSuppliers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load products: %w", err)
	}

	s.updateRun(run, func(r *models.ForecastRun) { r.ProductsTotal = len(products) })

	if len(products) == 0 {
		s.logger.Warn("No products to forecast")
		return nil
	}

	series := make([]forecaster.Series, len(products))
	for i, product := range products {
		history, err := s.txns.DailyOutboundDemand(ctx, product.ID, s.cfg.HistoryDays)
		if err != nil {
			return fmt.Errorf("failed to extract demand history for %s: %w", product.SKU, err)
		}
		series[i] = demandSeries(product.SKU, history, s.cfg.MinHistoryPoints)
	}

	predictions, err := s.predictWithRetry(ctx, series)
	if err != nil {
		return err
	}

	points, medians := s.buildForecastPoints(products, predictions)
	if err := s.forecasts.ReplaceUpcoming(ctx, points); err != nil {
		return fmt.Errorf("failed to store forecasts: %w", err)
	}

	s.updateRun(run, func(r *models.ForecastRun) {
		r.ProductsForecasted = len(predictions)
		r.PointsStored = len(points)
	})

	signals, err := s.buildSignals(ctx, products, medians)
	if err != nil {
		return err
	}

	result, err := s.engine.Evaluate(ctx, signals)
	if err != nil {
		return fmt.Errorf("alert pass failed: %w", err)
	}

	s.updateRun(run, func(r *models.ForecastRun) {
		r.AlertsCreated = len(result.Created)
		r.AlertsResolved = len(result.Resolved)
	})

	for _, alert := range result.Created {
		s.events.Publish(ctx, notify.NewEvent(notify.EventAlertCreated, alert))
	}
	for _, alert := range result.Resolved {
		s.events.Publish(ctx, notify.NewEvent(notify.EventAlertResolved, alert))
	}

	return nil
}

// predictWithRetry calls the inference endpoint, retrying errors the
// forecaster classifies as transient with exponential backoff.
func (s *forecastService) predictWithRetry(ctx context.Context, series []forecaster.Series) ([]forecaster.Prediction, error) {
	attempts := s.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryCfg := &retry.Config{
		MaxRetries:   attempts - 1,
		InitialDelay: time.Duration(s.cfg.BackoffInitialSeconds) * time.Second,
		MaxDelay:     time.Duration(s.cfg.BackoffMaxSeconds) * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}

	var predictions []forecaster.Prediction
	err := retry.DoIfRetryable(ctx, retryCfg, func() error {
		var callErr error
		predictions, callErr = s.client.Predict(ctx, series)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return predictions, nil
}

// buildForecastPoints turns predictions into storable rows dated tomorrow
// onward and collects each product's median path for the alert pass.
func (s *forecastService) buildForecastPoints(products []*models.ProductWithSupplier, predictions []forecaster.Prediction) ([]*models.ForecastPoint, map[uuid.UUID][]float64) {
	today := midnightUTC(time.Now())
	modelVersion := s.client.GetModelVersion()

	points := make([]*models.ForecastPoint, 0, len(predictions)*s.cfg.PredictionDays)
	medians := make(map[uuid.UUID][]float64, len(predictions))

	for i, prediction := range predictions {
		product := products[i]
		median := prediction.Quantile(0.5)
		lower := prediction.Quantile(0.1)
		upper := prediction.Quantile(0.9)
		medians[product.ID] = median

		for day := range median {
			points = append(points, &models.ForecastPoint{
				ProductID:    product.ID,
				Date:         today.AddDate(0, 0, day+1),
				Predicted:    round2(median[day]),
				Lower:        round2(lower[day]),
				Upper:        round2(upper[day]),
				ModelVersion: modelVersion,
			})
		}
	}

	return points, medians
}

// buildSignals derives the per-product demand aggregates the alert engine
// evaluates, joining in the realized-vs-predicted accuracy window.
func (s *forecastService) buildSignals(ctx context.Context, products []*models.ProductWithSupplier, medians map[uuid.UUID][]float64) ([]*ProductSignal, error) {
	accuracyFrom := time.Now().UTC().AddDate(0, 0, -accuracyWindowDays)
	realized, err := s.forecasts.ListRecentWithActuals(ctx, accuracyFrom)
	if err != nil {
		return nil, fmt.Errorf("failed to load realized forecasts: %w", err)
	}

	accuracy := make(map[uuid.UUID][]*models.ForecastPoint)
	for _, point := range realized {
		accuracy[point.ProductID] = append(accuracy[point.ProductID], point)
	}

	signals := make([]*ProductSignal, len(products))
	for i, product := range products {
		median := medians[product.ID]
		avg := stock.AvgDailyDemand(median, avgDemandDays)
		signals[i] = &ProductSignal{
			Product:           product,
			AvgDailyDemand:    avg,
			NearTermAvg:       stock.AvgDailyDemand(median, s.thresholds.SpikeNearDays),
			DaysUntilStockout: stock.DaysUntilStockout(product.CurrentStock, avg),
			Accuracy:          accuracy[product.ID],
		}
	}

	return signals, nil
}

// demandSeries converts a product's daily demand history into an inference
// input series. Histories shorter than minPoints are padded with their mean,
// or with a flat baseline when there is no history at all.
func demandSeries(itemID string, history []models.DailyDemand, minPoints int) forecaster.Series {
	target := make([]float64, 0, len(history))
	for _, day := range history {
		target = append(target, day.Demand)
	}

	if len(target) < minPoints {
		pad := emptyHistoryDemand
		if len(target) > 0 {
			pad = stock.AvgDailyDemand(target, len(target))
		}
		for len(target) < minPoints {
			target = append(target, pad)
		}
	}

	return forecaster.Series{
		ItemID: itemID,
		Start:  time.Now().UTC().AddDate(0, 0, -len(target)),
		Target: target,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
