package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
	"github.com/velocityiq/velocityiq-engine/pkg/repositories"
	"github.com/velocityiq/velocityiq-engine/pkg/stock"
)

// ProductSignal bundles one product's rule inputs for an engine pass:
// the product with its supplier, the demand aggregates derived from the
// latest forecast, and recent rows whose realized demand is known.
type ProductSignal struct {
	Product           *models.ProductWithSupplier
	AvgDailyDemand    float64
	NearTermAvg       float64
	DaysUntilStockout *float64
	Accuracy          []*models.ForecastPoint
}

// AlertEngine turns product signals into alert rows. Plan is pure: it
// computes the creations and resolutions one pass should apply without
// touching storage. Evaluate wraps Plan with the open-alert snapshot and the
// transactional apply.
type AlertEngine interface {
	Plan(signals []*ProductSignal, openKeys []models.AlertKey) (*models.AlertPlan, error)
	Evaluate(ctx context.Context, signals []*ProductSignal) (*models.AlertPlanResult, error)
}

type alertEngine struct {
	repo       repositories.AlertRepository
	thresholds stock.Thresholds
	logger     *zap.Logger
}

// NewAlertEngine creates the rule engine with resolved thresholds.
func NewAlertEngine(repo repositories.AlertRepository, thresholds stock.Thresholds, logger *zap.Logger) AlertEngine {
	return &alertEngine{
		repo:       repo,
		thresholds: thresholds,
		logger:     logger.Named("alert-engine"),
	}
}

var _ AlertEngine = (*alertEngine)(nil)

// alertKeyID is the comparable form of models.AlertKey (uuid.Nil for the
// absent subject).
type alertKeyID struct {
	productID  uuid.UUID
	supplierID uuid.UUID
	alertType  models.AlertType
}

func keyID(key models.AlertKey) alertKeyID {
	id := alertKeyID{alertType: key.Type}
	if key.ProductID != nil {
		id.productID = *key.ProductID
	}
	if key.SupplierID != nil {
		id.supplierID = *key.SupplierID
	}
	return id
}

func productKey(productID uuid.UUID, alertType models.AlertType) models.AlertKey {
	id := productID
	return models.AlertKey{ProductID: &id, Type: alertType}
}

func supplierKey(supplierID uuid.UUID, alertType models.AlertType) models.AlertKey {
	id := supplierID
	return models.AlertKey{SupplierID: &id, Type: alertType}
}

// Plan evaluates every rule over the batch and diffs the desired open-alert
// set against openKeys. Signals failing basic invariants are skipped and
// logged; the whole pass aborts with InvalidInput only when more than
// MaxInvalidShare of the batch is invalid.
func (e *alertEngine) Plan(signals []*ProductSignal, openKeys []models.AlertKey) (*models.AlertPlan, error) {
	open := make(map[alertKeyID]bool, len(openKeys))
	for _, key := range openKeys {
		open[keyID(key)] = true
	}

	plan := &models.AlertPlan{}
	planned := make(map[alertKeyID]bool)
	invalid := 0

	// create opens the alert unless an identical one is already open or
	// planned; resolve closes it only when one is actually open.
	create := func(key models.AlertKey, alert *models.Alert) {
		id := keyID(key)
		if planned[id] {
			return
		}
		planned[id] = true
		if open[id] {
			return
		}
		alert.ProductID = key.ProductID
		alert.SupplierID = key.SupplierID
		plan.Creates = append(plan.Creates, alert)
	}
	resolve := func(key models.AlertKey) {
		id := keyID(key)
		if planned[id] || !open[id] {
			return
		}
		planned[id] = true
		plan.Resolves = append(plan.Resolves, key)
	}

	for _, signal := range signals {
		if err := validateSignal(signal); err != nil {
			invalid++
			e.logger.Warn("Skipping invalid product signal", zap.Error(err))
			continue
		}

		product := signal.Product
		status, err := stock.Classify(product.CurrentStock, product.ReorderPoint,
			signal.DaysUntilStockout, e.thresholds)
		if err != nil {
			invalid++
			e.logger.Warn("Skipping unclassifiable product",
				zap.String("product_id", product.ID.String()),
				zap.Error(err))
			continue
		}

		e.planStockLow(create, resolve, signal, status)
		e.planDemandSpike(create, resolve, signal)
		e.planSupplierRisk(create, resolve, product)
		e.planForecastAnomaly(create, resolve, signal)
	}

	if len(signals) > 0 {
		share := float64(invalid) / float64(len(signals))
		if share > e.thresholds.MaxInvalidShare {
			return nil, fmt.Errorf("%w: %d of %d product signals invalid",
				apperrors.ErrInvalidInput, invalid, len(signals))
		}
	}

	return plan, nil
}

// Evaluate plans against the current open-alert set and applies the result
// in one transaction.
func (e *alertEngine) Evaluate(ctx context.Context, signals []*ProductSignal) (*models.AlertPlanResult, error) {
	openKeys, err := e.repo.ListOpenKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load open alerts: %w", err)
	}

	plan, err := e.Plan(signals, openKeys)
	if err != nil {
		return nil, err
	}

	result, err := e.repo.ApplyPlan(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to apply alert plan: %w", err)
	}

	e.logger.Info("Alert pass applied",
		zap.Int("products", len(signals)),
		zap.Int("created", len(result.Created)),
		zap.Int("resolved", len(result.Resolved)))

	return result, nil
}

func validateSignal(signal *ProductSignal) error {
	if signal == nil || signal.Product == nil {
		return fmt.Errorf("%w: signal has no product", apperrors.ErrInvalidInput)
	}
	if signal.AvgDailyDemand < 0 || signal.NearTermAvg < 0 {
		return fmt.Errorf("%w: product %s has negative demand aggregates",
			apperrors.ErrInvalidInput, signal.Product.ID)
	}
	return nil
}

// planStockLow opens one stock_low alert per product in trouble. The reorder
// breach wording wins over the projected-stockout wording when both hold.
func (e *alertEngine) planStockLow(create func(models.AlertKey, *models.Alert), resolve func(models.AlertKey), signal *ProductSignal, status stock.Status) {
	product := signal.Product
	key := productKey(product.ID, models.AlertStockLow)

	switch status {
	case stock.StatusReorderNow, stock.StatusLowStock:
	default:
		resolve(key)
		return
	}

	alert := &models.Alert{Type: models.AlertStockLow}
	if product.CurrentStock <= product.ReorderPoint {
		alert.Severity = models.SeverityHigh
		alert.Title = "Reorder Point Reached: " + product.Name
		alert.Description = fmt.Sprintf("Current stock (%d) at or below reorder point (%d)",
			product.CurrentStock, product.ReorderPoint)
	} else {
		alert.Severity = models.SeverityMedium
		if status == stock.StatusReorderNow {
			alert.Severity = models.SeverityHigh
		}
		alert.Title = "Stock Alert: " + product.Name
		alert.Description = fmt.Sprintf(
			"Predicted stockout in %.1f days. Current stock: %d, avg daily demand: %.1f",
			*signal.DaysUntilStockout, product.CurrentStock, signal.AvgDailyDemand)
	}

	create(key, alert)
}

// planDemandSpike compares the near-term forecast mean against the trailing
// average using the shared significance threshold.
func (e *alertEngine) planDemandSpike(create func(models.AlertKey, *models.Alert), resolve func(models.AlertKey), signal *ProductSignal) {
	product := signal.Product
	key := productKey(product.ID, models.AlertDemandSpike)

	spiking := signal.NearTermAvg > 0 &&
		signal.NearTermAvg >= signal.AvgDailyDemand*(1+e.thresholds.SpikeThresholdPct)
	if !spiking {
		resolve(key)
		return
	}

	create(key, &models.Alert{
		Type:     models.AlertDemandSpike,
		Severity: models.SeverityMedium,
		Title:    "Demand Spike: " + product.Name,
		Description: fmt.Sprintf("Predicted demand spike detected. 3-day avg: %.1f, 7-day avg: %.1f",
			signal.NearTermAvg, signal.AvgDailyDemand),
	})
}

// planSupplierRisk grades the owning supplier. The subject is the supplier,
// so products sharing one converge on the same key and the plan dedupes.
func (e *alertEngine) planSupplierRisk(create func(models.AlertKey, *models.Alert), resolve func(models.AlertKey), product *models.ProductWithSupplier) {
	supplier := product.Supplier
	if supplier == nil {
		return
	}
	key := supplierKey(supplier.ID, models.AlertSupplierRisk)

	var reasons []string
	if supplier.LeadTimeDays > e.thresholds.MaxLeadTimeDays {
		reasons = append(reasons, fmt.Sprintf("Lead time %d days exceeds the %d-day limit",
			supplier.LeadTimeDays, e.thresholds.MaxLeadTimeDays))
	}
	if supplier.ReliabilityScore < e.thresholds.MinReliabilityScore {
		reasons = append(reasons, fmt.Sprintf("Reliability score %.2f below the %.2f minimum",
			supplier.ReliabilityScore, e.thresholds.MinReliabilityScore))
	}

	severity, graded := supplierSeverity(supplier.RiskLevel)
	if len(reasons) == 0 || !graded {
		resolve(key)
		return
	}

	create(key, &models.Alert{
		Type:        models.AlertSupplierRisk,
		Severity:    severity,
		Title:       "Supplier Risk: " + supplier.Name,
		Description: strings.Join(reasons, "; "),
	})
}

// supplierSeverity maps the supplier's administrative risk level to an alert
// severity; low-risk suppliers never alert.
func supplierSeverity(level models.RiskLevel) (models.AlertSeverity, bool) {
	switch level {
	case models.RiskHigh:
		return models.SeverityHigh, true
	case models.RiskMedium:
		return models.SeverityMedium, true
	default:
		return "", false
	}
}

// planForecastAnomaly flags the worst realized-vs-predicted deviation beyond
// tolerance in the signal's accuracy window.
func (e *alertEngine) planForecastAnomaly(create func(models.AlertKey, *models.Alert), resolve func(models.AlertKey), signal *ProductSignal) {
	product := signal.Product
	key := productKey(product.ID, models.AlertForecastAnomaly)

	var worst *models.ForecastPoint
	var worstDeviation float64
	for _, point := range signal.Accuracy {
		if point.ActualDemand == nil {
			continue
		}
		deviation := math.Abs(*point.ActualDemand-point.Predicted) / math.Max(point.Predicted, 1)
		if deviation > e.thresholds.AnomalyTolerancePct && deviation > worstDeviation {
			worst = point
			worstDeviation = deviation
		}
	}

	if worst == nil {
		resolve(key)
		return
	}

	create(key, &models.Alert{
		Type:     models.AlertForecastAnomaly,
		Severity: models.SeverityLow,
		Title:    "Forecast Anomaly: " + product.Name,
		Description: fmt.Sprintf("Actual demand %.1f deviated %.0f%% from predicted %.1f on %s",
			*worst.ActualDemand, worstDeviation*100, worst.Predicted,
			worst.Date.Format("2006-01-02")),
	})
}
