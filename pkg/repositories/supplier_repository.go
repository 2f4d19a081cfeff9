// Package repositories provides PostgreSQL data access for the engine.
package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/velocityiq/velocityiq-engine/pkg/database"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
)

// SupplierRepository provides data access for suppliers.
type SupplierRepository interface {
	Create(ctx context.Context, supplier *models.Supplier) error
	Get(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	List(ctx context.Context) ([]*models.Supplier, error)
}

type supplierRepository struct {
	db *database.DB
}

// NewSupplierRepository creates a new supplier repository.
func NewSupplierRepository(db *database.DB) SupplierRepository {
	return &supplierRepository{db: db}
}

var _ SupplierRepository = (*supplierRepository)(nil)

func (r *supplierRepository) Create(ctx context.Context, supplier *models.Supplier) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO suppliers (name, contact_email, lead_time_days, reliability_score, risk_level)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		supplier.Name, supplier.ContactEmail, supplier.LeadTimeDays,
		supplier.ReliabilityScore, supplier.RiskLevel,
	).Scan(&supplier.ID, &supplier.CreatedAt, &supplier.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create supplier: %w", err)
	}

	return nil
}

func (r *supplierRepository) Get(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, contact_email, lead_time_days, reliability_score, risk_level, created_at, updated_at
		FROM suppliers
		WHERE id = $1`, id)

	supplier := &models.Supplier{}
	err := row.Scan(
		&supplier.ID, &supplier.Name, &supplier.ContactEmail, &supplier.LeadTimeDays,
		&supplier.ReliabilityScore, &supplier.RiskLevel, &supplier.CreatedAt, &supplier.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get supplier: %w", err)
	}

	return supplier, nil
}

func (r *supplierRepository) List(ctx context.Context) ([]*models.Supplier, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, contact_email, lead_time_days, reliability_score, risk_level, created_at, updated_at
		FROM suppliers
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []*models.Supplier
	for rows.Next() {
		supplier := &models.Supplier{}
		err := rows.Scan(
			&supplier.ID, &supplier.Name, &supplier.ContactEmail, &supplier.LeadTimeDays,
			&supplier.ReliabilityScore, &supplier.RiskLevel, &supplier.CreatedAt, &supplier.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		suppliers = append(suppliers, supplier)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suppliers: %w", err)
	}

	return suppliers, nil
}
