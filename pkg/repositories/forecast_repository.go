package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/velocityiq/velocityiq-engine/pkg/database"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
)

// forecastInsertBatchSize bounds the number of inserts queued per round trip
// when replacing a run's forecast rows.
const forecastInsertBatchSize = 100

// ForecastRepository provides data access for stored forecast rows.
type ForecastRepository interface {
	ReplaceUpcoming(ctx context.Context, points []*models.ForecastPoint) error
	ListWithProducts(ctx context.Context, from, to time.Time) ([]*models.ForecastWithProduct, error)
	ListWithProductsSince(ctx context.Context, from time.Time) ([]*models.ForecastWithProduct, error)
	ListForProduct(ctx context.Context, productID uuid.UUID, from, to time.Time) ([]*models.ForecastPoint, error)
	ListRecentWithActuals(ctx context.Context, from time.Time) ([]*models.ForecastPoint, error)
	CountUpcoming(ctx context.Context) (int, error)
	AvgPredictedByProduct(ctx context.Context, from time.Time) (map[uuid.UUID]float64, error)
	LatestCreatedAt(ctx context.Context) (*time.Time, error)
}

type forecastRepository struct {
	db *database.DB
}

// NewForecastRepository creates a new forecast repository.
func NewForecastRepository(db *database.DB) ForecastRepository {
	return &forecastRepository{db: db}
}

var _ ForecastRepository = (*forecastRepository)(nil)

// ReplaceUpcoming atomically swaps the future forecast rows for every product
// present in points: rows dated today or later are deleted for those products,
// then the new rows are inserted. Products absent from points keep their
// stored forecasts. A failure anywhere rolls the whole batch back.
func (r *forecastRepository) ReplaceUpcoming(ctx context.Context, points []*models.ForecastPoint) error {
	if len(points) == 0 {
		return nil
	}

	seen := make(map[uuid.UUID]bool)
	productIDs := make([]uuid.UUID, 0, len(points))
	for _, point := range points {
		if !seen[point.ProductID] {
			seen[point.ProductID] = true
			productIDs = append(productIDs, point.ProductID)
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	_, err = tx.Exec(ctx,
		`DELETE FROM forecast_data WHERE product_id = ANY($1) AND date >= CURRENT_DATE`,
		productIDs)
	if err != nil {
		return fmt.Errorf("failed to delete stale forecasts: %w", err)
	}

	for start := 0; start < len(points); start += forecastInsertBatchSize {
		end := start + forecastInsertBatchSize
		if end > len(points) {
			end = len(points)
		}

		batch := &pgx.Batch{}
		for _, point := range points[start:end] {
			batch.Queue(`
				INSERT INTO forecast_data (product_id, date, predicted_demand,
					confidence_interval_lower, confidence_interval_upper, model_version)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				point.ProductID, point.Date, point.Predicted,
				point.Lower, point.Upper, point.ModelVersion)
		}

		results := tx.SendBatch(ctx, batch)
		for range points[start:end] {
			if _, err := results.Exec(); err != nil {
				results.Close() //nolint:errcheck // close before surfacing the insert error
				return fmt.Errorf("failed to insert forecast batch: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close forecast batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit forecast replacement: %w", err)
	}

	return nil
}

const forecastWithProductColumns = `
	f.id, f.product_id, f.date, f.predicted_demand,
	f.confidence_interval_lower, f.confidence_interval_upper,
	f.model_version, f.actual_demand, f.created_at,
	p.name, p.sku, p.category, p.current_stock`

// ListWithProducts returns forecast rows dated within [from, to] joined with
// their product, ordered by date then product name.
func (r *forecastRepository) ListWithProducts(ctx context.Context, from, to time.Time) ([]*models.ForecastWithProduct, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+forecastWithProductColumns+`
		FROM forecast_data f
		JOIN products p ON p.id = f.product_id
		WHERE f.date >= $1 AND f.date <= $2
		ORDER BY f.date, p.name`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}
	defer rows.Close()

	return collectForecastsWithProduct(rows)
}

// ListWithProductsSince is ListWithProducts without an upper bound, used for
// trend analysis which looks back a window and forward over every stored row.
func (r *forecastRepository) ListWithProductsSince(ctx context.Context, from time.Time) ([]*models.ForecastWithProduct, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+forecastWithProductColumns+`
		FROM forecast_data f
		JOIN products p ON p.id = f.product_id
		WHERE f.date >= $1
		ORDER BY f.date, p.name`,
		from)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts since date: %w", err)
	}
	defer rows.Close()

	return collectForecastsWithProduct(rows)
}

func (r *forecastRepository) ListForProduct(ctx context.Context, productID uuid.UUID, from, to time.Time) ([]*models.ForecastPoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, date, predicted_demand,
		       confidence_interval_lower, confidence_interval_upper,
		       model_version, actual_demand, created_at
		FROM forecast_data
		WHERE product_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date`,
		productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list product forecasts: %w", err)
	}
	defer rows.Close()

	var points []*models.ForecastPoint
	for rows.Next() {
		point := &models.ForecastPoint{}
		err := rows.Scan(
			&point.ID, &point.ProductID, &point.Date, &point.Predicted,
			&point.Lower, &point.Upper, &point.ModelVersion,
			&point.ActualDemand, &point.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product forecasts: %w", err)
	}

	return points, nil
}

// ListRecentWithActuals returns forecast rows dated from or later whose
// realized demand has been backfilled, ordered by product then date. This is
// the accuracy window the anomaly rule evaluates.
func (r *forecastRepository) ListRecentWithActuals(ctx context.Context, from time.Time) ([]*models.ForecastPoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, date, predicted_demand,
		       confidence_interval_lower, confidence_interval_upper,
		       model_version, actual_demand, created_at
		FROM forecast_data
		WHERE actual_demand IS NOT NULL AND date >= $1
		ORDER BY product_id, date`,
		from)
	if err != nil {
		return nil, fmt.Errorf("failed to list realized forecasts: %w", err)
	}
	defer rows.Close()

	var points []*models.ForecastPoint
	for rows.Next() {
		point := &models.ForecastPoint{}
		err := rows.Scan(
			&point.ID, &point.ProductID, &point.Date, &point.Predicted,
			&point.Lower, &point.Upper, &point.ModelVersion,
			&point.ActualDemand, &point.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan realized forecast: %w", err)
		}
		points = append(points, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating realized forecasts: %w", err)
	}

	return points, nil
}

// CountUpcoming counts forecast rows dated today or later.
func (r *forecastRepository) CountUpcoming(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM forecast_data WHERE date >= CURRENT_DATE`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count upcoming forecasts: %w", err)
	}
	return count, nil
}

// AvgPredictedByProduct averages predicted demand per product over every
// forecast row dated from or later.
func (r *forecastRepository) AvgPredictedByProduct(ctx context.Context, from time.Time) (map[uuid.UUID]float64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT product_id, AVG(predicted_demand)::float8
		FROM forecast_data
		WHERE date >= $1
		GROUP BY product_id`,
		from)
	if err != nil {
		return nil, fmt.Errorf("failed to average predicted demand: %w", err)
	}
	defer rows.Close()

	averages := make(map[uuid.UUID]float64)
	for rows.Next() {
		var productID uuid.UUID
		var avg float64
		if err := rows.Scan(&productID, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan demand average: %w", err)
		}
		averages[productID] = avg
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating demand averages: %w", err)
	}

	return averages, nil
}

// LatestCreatedAt returns the newest forecast row insertion time, or nil when
// no forecasts are stored. It seeds the staleness indicator after a restart.
func (r *forecastRepository) LatestCreatedAt(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT MAX(created_at) FROM forecast_data`).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest forecast time: %w", err)
	}
	return latest, nil
}

func collectForecastsWithProduct(rows pgx.Rows) ([]*models.ForecastWithProduct, error) {
	var forecasts []*models.ForecastWithProduct
	for rows.Next() {
		forecast := &models.ForecastWithProduct{}
		err := rows.Scan(
			&forecast.ID, &forecast.ProductID, &forecast.Date, &forecast.Predicted,
			&forecast.Lower, &forecast.Upper, &forecast.ModelVersion,
			&forecast.ActualDemand, &forecast.CreatedAt,
			&forecast.ProductName, &forecast.SKU, &forecast.Category, &forecast.CurrentStock,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast with product: %w", err)
		}
		forecasts = append(forecasts, forecast)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecasts: %w", err)
	}

	return forecasts, nil
}
