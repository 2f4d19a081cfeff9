package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/velocityiq/velocityiq-engine/pkg/forecaster"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
	"github.com/velocityiq/velocityiq-engine/pkg/notify"
)

// mockProductRepo is a configurable in-memory ProductRepository.
type mockProductRepo struct {
	products       []*models.ProductWithSupplier
	lowStock       int
	inventoryValue decimal.Decimal
	err            error
}

func (m *mockProductRepo) Create(_ context.Context, product *models.Product) error {
	if m.err != nil {
		return m.err
	}
	m.products = append(m.products, &models.ProductWithSupplier{Product: *product})
	return nil
}

func (m *mockProductRepo) Get(_ context.Context, id uuid.UUID) (*models.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			product := p.Product
			return &product, nil
		}
	}
	return nil, nil
}

func (m *mockProductRepo) GetBySKU(_ context.Context, sku string) (*models.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.SKU == sku {
			product := p.Product
			return &product, nil
		}
	}
	return nil, nil
}

func (m *mockProductRepo) List(_ context.Context) ([]*models.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	products := make([]*models.Product, len(m.products))
	for i, p := range m.products {
		product := p.Product
		products[i] = &product
	}
	return products, nil
}

func (m *mockProductRepo) ListWithSuppliers(_ context.Context) ([]*models.ProductWithSupplier, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.products, nil
}

func (m *mockProductRepo) Count(_ context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return len(m.products), nil
}

func (m *mockProductRepo) LowStockCount(_ context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.lowStock, nil
}

func (m *mockProductRepo) TotalInventoryValue(_ context.Context) (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return m.inventoryValue, nil
}

// mockTransactionRepo serves canned per-product demand histories.
type mockTransactionRepo struct {
	demand  map[uuid.UUID][]models.DailyDemand
	created []*models.InventoryTransaction
	err     error
}

func (m *mockTransactionRepo) Create(_ context.Context, transaction *models.InventoryTransaction) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, transaction)
	return nil
}

func (m *mockTransactionRepo) CreateBatch(_ context.Context, transactions []*models.InventoryTransaction) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, transactions...)
	return nil
}

func (m *mockTransactionRepo) DailyOutboundDemand(_ context.Context, productID uuid.UUID, _ int) ([]models.DailyDemand, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.demand[productID], nil
}

// mockForecastRepo captures stored forecasts and serves canned listings.
type mockForecastRepo struct {
	stored       []*models.ForecastPoint
	withProducts []*models.ForecastWithProduct
	forProduct   []*models.ForecastPoint
	realized     []*models.ForecastPoint
	realizedFrom time.Time
	listFrom     time.Time
	listTo       time.Time
	sinceFrom    time.Time
	upcoming     int
	averages     map[uuid.UUID]float64
	latest       *time.Time
	replaceErr   error
	err          error
}

func (m *mockForecastRepo) ReplaceUpcoming(_ context.Context, points []*models.ForecastPoint) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.stored = points
	return nil
}

func (m *mockForecastRepo) ListWithProducts(_ context.Context, from, to time.Time) ([]*models.ForecastWithProduct, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.listFrom, m.listTo = from, to
	return m.withProducts, nil
}

func (m *mockForecastRepo) ListWithProductsSince(_ context.Context, from time.Time) ([]*models.ForecastWithProduct, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sinceFrom = from
	return m.withProducts, nil
}

func (m *mockForecastRepo) ListForProduct(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]*models.ForecastPoint, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.forProduct, nil
}

func (m *mockForecastRepo) ListRecentWithActuals(_ context.Context, from time.Time) ([]*models.ForecastPoint, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.realizedFrom = from
	return m.realized, nil
}

func (m *mockForecastRepo) CountUpcoming(_ context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.upcoming, nil
}

func (m *mockForecastRepo) AvgPredictedByProduct(_ context.Context, _ time.Time) (map[uuid.UUID]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.averages, nil
}

func (m *mockForecastRepo) LatestCreatedAt(_ context.Context) (*time.Time, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.latest, nil
}

// mockForecastClient synthesizes one prediction per input series: a flat
// median of 10 unless medianByItem overrides it per SKU.
type mockForecastClient struct {
	mu           sync.Mutex
	series       []forecaster.Series
	calls        int
	err          error
	medianByItem map[string][]float64
	days         int
	entered      chan struct{}
	release      chan struct{}
}

func (m *mockForecastClient) Predict(_ context.Context, series []forecaster.Series) ([]forecaster.Prediction, error) {
	m.mu.Lock()
	m.calls++
	m.series = series
	entered := m.entered
	m.entered = nil
	m.mu.Unlock()

	if entered != nil {
		close(entered)
		<-m.release
	}

	if m.err != nil {
		return nil, m.err
	}

	days := m.days
	if days == 0 {
		days = 14
	}

	predictions := make([]forecaster.Prediction, len(series))
	for i, s := range series {
		median := m.medianByItem[s.ItemID]
		if median == nil {
			median = flatSeries(10, days)
		}
		predictions[i] = forecaster.Prediction{
			ItemID: s.ItemID,
			Quantiles: map[string][]float64{
				"0.1":  scaledSeries(median, 0.8),
				"0.25": scaledSeries(median, 0.9),
				"0.5":  median,
				"0.75": scaledSeries(median, 1.1),
				"0.9":  scaledSeries(median, 1.2),
			},
		}
	}
	return predictions, nil
}

func (m *mockForecastClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockForecastClient) GetModelVersion() string { return "chronos-bolt-small" }

func (m *mockForecastClient) GetEndpoint() string { return "http://forecaster.test" }

func flatSeries(value float64, length int) []float64 {
	series := make([]float64, length)
	for i := range series {
		series[i] = value
	}
	return series
}

func scaledSeries(values []float64, factor float64) []float64 {
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v * factor
	}
	return scaled
}

// captureSink records published events in order.
type captureSink struct {
	events []notify.Event
}

func (s *captureSink) Publish(_ context.Context, event notify.Event) {
	s.events = append(s.events, event)
}

func (s *captureSink) byType(eventType string) []notify.Event {
	var matched []notify.Event
	for _, event := range s.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// mockAlertStore is a configurable in-memory AlertRepository.
type mockAlertStore struct {
	openKeys     []models.AlertKey
	open         []*models.AlertWithContext
	openCritical int
	resolved     *models.Alert
	appliedPlan  *models.AlertPlan
	applyErr     error
	listKeysErr  error
	resolveErr   error
	err          error
}

func (m *mockAlertStore) Get(_ context.Context, _ uuid.UUID) (*models.Alert, error) {
	return nil, nil
}

func (m *mockAlertStore) ListOpen(_ context.Context, limit int) ([]*models.AlertWithContext, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit >= 0 && limit < len(m.open) {
		return m.open[:limit], nil
	}
	return m.open, nil
}

func (m *mockAlertStore) ListOpenKeys(_ context.Context) ([]models.AlertKey, error) {
	if m.listKeysErr != nil {
		return nil, m.listKeysErr
	}
	return m.openKeys, nil
}

func (m *mockAlertStore) CountOpenCritical(_ context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.openCritical, nil
}

func (m *mockAlertStore) Resolve(_ context.Context, _ uuid.UUID) (*models.Alert, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.resolved, nil
}

func (m *mockAlertStore) ApplyPlan(_ context.Context, plan *models.AlertPlan) (*models.AlertPlanResult, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	m.appliedPlan = plan
	result := &models.AlertPlanResult{}
	for _, alert := range plan.Creates {
		created := *alert
		created.ID = uuid.New()
		created.CreatedAt = time.Now()
		result.Created = append(result.Created, &created)
	}
	for _, key := range plan.Resolves {
		now := time.Now()
		result.Resolved = append(result.Resolved, &models.Alert{
			ID:         uuid.New(),
			Type:       key.Type,
			ProductID:  key.ProductID,
			SupplierID: key.SupplierID,
			IsResolved: true,
			ResolvedAt: &now,
		})
	}
	return result, nil
}

// stubRunTracker satisfies ForecastService where only run bookkeeping matters.
type stubRunTracker struct {
	run *models.ForecastRun
}

func (s *stubRunTracker) RunPipeline(_ context.Context) (*models.ForecastRun, error) {
	return s.run, nil
}

func (s *stubRunTracker) LastRun() *models.ForecastRun {
	return s.run
}
