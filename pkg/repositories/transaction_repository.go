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

// TransactionRepository provides data access for the inventory ledger.
type TransactionRepository interface {
	Create(ctx context.Context, transaction *models.InventoryTransaction) error
	CreateBatch(ctx context.Context, transactions []*models.InventoryTransaction) error
	DailyOutboundDemand(ctx context.Context, productID uuid.UUID, days int) ([]models.DailyDemand, error)
}

type transactionRepository struct {
	db *database.DB
}

// NewTransactionRepository creates a new inventory transaction repository.
func NewTransactionRepository(db *database.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

var _ TransactionRepository = (*transactionRepository)(nil)

const insertTransactionQuery = `
	INSERT INTO inventory_transactions (product_id, type, quantity, reference, created_at)
	VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
	RETURNING id, created_at`

func (r *transactionRepository) Create(ctx context.Context, transaction *models.InventoryTransaction) error {
	err := r.db.QueryRow(ctx, insertTransactionQuery,
		transaction.ProductID, transaction.Type, transaction.Quantity,
		transaction.Reference, nullableTime(transaction.CreatedAt),
	).Scan(&transaction.ID, &transaction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// CreateBatch inserts transactions in a single round trip. Zero CreatedAt
// values default to NOW(); backdated rows keep their timestamps.
func (r *transactionRepository) CreateBatch(ctx context.Context, transactions []*models.InventoryTransaction) error {
	if len(transactions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, transaction := range transactions {
		batch.Queue(insertTransactionQuery,
			transaction.ProductID, transaction.Type, transaction.Quantity,
			transaction.Reference, nullableTime(transaction.CreatedAt))
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck // close on defer is best-effort

	for _, transaction := range transactions {
		if err := results.QueryRow().Scan(&transaction.ID, &transaction.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert transaction batch: %w", err)
		}
	}

	return nil
}

// DailyOutboundDemand aggregates absolute outbound quantities per calendar
// date over the trailing window. Dates with no outbound movement are absent
// from the result; order is oldest first.
func (r *transactionRepository) DailyOutboundDemand(ctx context.Context, productID uuid.UUID, days int) ([]models.DailyDemand, error) {
	rows, err := r.db.Query(ctx, `
		SELECT created_at::date AS day, SUM(ABS(quantity))::float8 AS demand
		FROM inventory_transactions
		WHERE product_id = $1
		  AND type = 'outbound'
		  AND created_at >= NOW() - make_interval(days => $2)
		GROUP BY day
		ORDER BY day`,
		productID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily demand: %w", err)
	}
	defer rows.Close()

	var demand []models.DailyDemand
	for rows.Next() {
		var d models.DailyDemand
		if err := rows.Scan(&d.Date, &d.Demand); err != nil {
			return nil, fmt.Errorf("failed to scan daily demand: %w", err)
		}
		demand = append(demand, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily demand: %w", err)
	}

	return demand, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
