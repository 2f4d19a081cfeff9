package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
	"github.com/velocityiq/velocityiq-engine/pkg/database"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
)

// AlertRepository provides data access for alerts.
type AlertRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	ListOpen(ctx context.Context, limit int) ([]*models.AlertWithContext, error)
	ListOpenKeys(ctx context.Context) ([]models.AlertKey, error)
	CountOpenCritical(ctx context.Context) (int, error)
	Resolve(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	ApplyPlan(ctx context.Context, plan *models.AlertPlan) (*models.AlertPlanResult, error)
}

type alertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *database.DB) AlertRepository {
	return &alertRepository{db: db}
}

var _ AlertRepository = (*alertRepository)(nil)

const alertColumns = `id, type, severity, title, description, product_id, supplier_id, is_resolved, created_at, resolved_at`

func (r *alertRepository) Get(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)

	alert, err := scanAlert(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// ListOpen returns unresolved alerts joined with product and supplier names,
// worst severity first, newest first within a severity.
func (r *alertRepository) ListOpen(ctx context.Context, limit int) ([]*models.AlertWithContext, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.type, a.severity, a.title, a.description,
		       a.product_id, a.supplier_id, a.is_resolved, a.created_at, a.resolved_at,
		       p.name, p.sku, s.name
		FROM alerts a
		LEFT JOIN products p ON p.id = a.product_id
		LEFT JOIN suppliers s ON s.id = a.supplier_id
		WHERE NOT a.is_resolved
		ORDER BY CASE a.severity
		         WHEN 'critical' THEN 1
		         WHEN 'high' THEN 2
		         WHEN 'medium' THEN 3
		         WHEN 'low' THEN 4
		         ELSE 5 END,
		         a.created_at DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.AlertWithContext
	for rows.Next() {
		alert := &models.AlertWithContext{}
		err := rows.Scan(
			&alert.ID, &alert.Type, &alert.Severity, &alert.Title, &alert.Description,
			&alert.ProductID, &alert.SupplierID, &alert.IsResolved,
			&alert.CreatedAt, &alert.ResolvedAt,
			&alert.ProductName, &alert.SKU, &alert.SupplierName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open alerts: %w", err)
	}

	return alerts, nil
}

// ListOpenKeys returns the (subject, type) keys of every unresolved alert.
// The rule engine diffs desired alerts against these to decide what to open
// and what to resolve.
func (r *alertRepository) ListOpenKeys(ctx context.Context) ([]models.AlertKey, error) {
	rows, err := r.db.Query(ctx,
		`SELECT product_id, supplier_id, type FROM alerts WHERE NOT is_resolved`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alert keys: %w", err)
	}
	defer rows.Close()

	var keys []models.AlertKey
	for rows.Next() {
		var key models.AlertKey
		if err := rows.Scan(&key.ProductID, &key.SupplierID, &key.Type); err != nil {
			return nil, fmt.Errorf("failed to scan alert key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert keys: %w", err)
	}

	return keys, nil
}

// CountOpenCritical counts unresolved alerts with high or critical severity.
func (r *alertRepository) CountOpenCritical(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE NOT is_resolved AND severity IN ('high', 'critical')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count critical alerts: %w", err)
	}
	return count, nil
}

// Resolve marks one alert resolved. It returns apperrors.ErrNotFound for an
// unknown id and apperrors.ErrConflict when the alert is already resolved.
func (r *alertRepository) Resolve(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE alerts
		SET is_resolved = TRUE, resolved_at = NOW()
		WHERE id = $1 AND NOT is_resolved
		RETURNING `+alertColumns,
		id)

	alert, err := scanAlert(row)
	if err == nil {
		return alert, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: alert %s", apperrors.ErrNotFound, id)
	}
	return nil, fmt.Errorf("%w: alert %s already resolved", apperrors.ErrConflict, id)
}

// ApplyPlan applies one rule-engine pass in a single transaction. Creates
// racing an identical open alert are skipped by the partial unique indexes;
// resolves touch only alerts still open. The result reports what actually
// changed so callers can fan events out after commit.
func (r *alertRepository) ApplyPlan(ctx context.Context, plan *models.AlertPlan) (*models.AlertPlanResult, error) {
	result := &models.AlertPlanResult{}
	if plan.IsEmpty() {
		return result, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	for _, alert := range plan.Creates {
		row := tx.QueryRow(ctx, `
			INSERT INTO alerts (type, severity, title, description, product_id, supplier_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING
			RETURNING `+alertColumns,
			alert.Type, alert.Severity, alert.Title, alert.Description,
			alert.ProductID, alert.SupplierID)

		created, err := scanAlert(row)
		if err != nil {
			if err == pgx.ErrNoRows {
				continue
			}
			return nil, fmt.Errorf("failed to create alert: %w", err)
		}
		result.Created = append(result.Created, created)
	}

	for _, key := range plan.Resolves {
		resolved, err := resolveByKey(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		result.Resolved = append(result.Resolved, resolved...)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit alert plan: %w", err)
	}

	return result, nil
}

func resolveByKey(ctx context.Context, tx pgx.Tx, key models.AlertKey) ([]*models.Alert, error) {
	rows, err := tx.Query(ctx, `
		UPDATE alerts
		SET is_resolved = TRUE, resolved_at = NOW()
		WHERE type = $1
		  AND product_id IS NOT DISTINCT FROM $2
		  AND supplier_id IS NOT DISTINCT FROM $3
		  AND NOT is_resolved
		RETURNING `+alertColumns,
		key.Type, key.ProductID, key.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alerts: %w", err)
	}
	defer rows.Close()

	var resolved []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolved alert: %w", err)
		}
		resolved = append(resolved, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolved alerts: %w", err)
	}

	return resolved, nil
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	alert := &models.Alert{}
	err := row.Scan(
		&alert.ID, &alert.Type, &alert.Severity, &alert.Title, &alert.Description,
		&alert.ProductID, &alert.SupplierID, &alert.IsResolved,
		&alert.CreatedAt, &alert.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return alert, nil
}
