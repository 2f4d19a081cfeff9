package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/velocityiq/velocityiq-engine/pkg/database"
	"github.com/velocityiq/velocityiq-engine/pkg/models"
)

// ProductRepository provides data access for products.
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	List(ctx context.Context) ([]*models.Product, error)
	ListWithSuppliers(ctx context.Context) ([]*models.ProductWithSupplier, error)
	Count(ctx context.Context) (int, error)
	LowStockCount(ctx context.Context) (int, error)
	TotalInventoryValue(ctx context.Context) (decimal.Decimal, error)
}

type productRepository struct {
	db *database.DB
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db *database.DB) ProductRepository {
	return &productRepository{db: db}
}

var _ ProductRepository = (*productRepository)(nil)

const productColumns = `id, sku, name, category, unit_cost, current_stock, reorder_point, supplier_id, created_at, updated_at`

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO products (sku, name, category, unit_cost, current_stock, reorder_point, supplier_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		product.SKU, product.Name, product.Category, product.UnitCost,
		product.CurrentStock, product.ReorderPoint, product.SupplierID,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	product, err := scanProduct(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return product, nil
}

func (r *productRepository) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)

	product, err := scanProduct(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product by sku: %w", err)
	}

	return product, nil
}

func (r *productRepository) List(ctx context.Context) ([]*models.Product, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

func (r *productRepository) ListWithSuppliers(ctx context.Context) ([]*models.ProductWithSupplier, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.sku, p.name, p.category, p.unit_cost, p.current_stock, p.reorder_point,
		       p.supplier_id, p.created_at, p.updated_at,
		       s.id, s.name, s.contact_email, s.lead_time_days, s.reliability_score, s.risk_level,
		       s.created_at, s.updated_at
		FROM products p
		LEFT JOIN suppliers s ON s.id = p.supplier_id
		ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products with suppliers: %w", err)
	}
	defer rows.Close()

	var products []*models.ProductWithSupplier
	for rows.Next() {
		item := &models.ProductWithSupplier{}

		var (
			supplierID       *uuid.UUID
			supplierName     *string
			contactEmail     *string
			leadTimeDays     *int
			reliabilityScore *float64
			riskLevel        *models.RiskLevel
			supplierCreated  *time.Time
			supplierUpdated  *time.Time
		)

		err := rows.Scan(
			&item.ID, &item.SKU, &item.Name, &item.Category, &item.UnitCost,
			&item.CurrentStock, &item.ReorderPoint, &item.SupplierID,
			&item.CreatedAt, &item.UpdatedAt,
			&supplierID, &supplierName, &contactEmail, &leadTimeDays,
			&reliabilityScore, &riskLevel, &supplierCreated, &supplierUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product with supplier: %w", err)
		}

		if supplierID != nil {
			item.Supplier = &models.Supplier{
				ID:               *supplierID,
				Name:             *supplierName,
				ContactEmail:     contactEmail,
				LeadTimeDays:     *leadTimeDays,
				ReliabilityScore: *reliabilityScore,
				RiskLevel:        *riskLevel,
				CreatedAt:        *supplierCreated,
				UpdatedAt:        *supplierUpdated,
			}
		}

		products = append(products, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products with suppliers: %w", err)
	}

	return products, nil
}

func (r *productRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// LowStockCount counts products at or below their reorder point.
func (r *productRepository) LowStockCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE current_stock <= reorder_point`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count low stock products: %w", err)
	}
	return count, nil
}

// TotalInventoryValue sums current_stock * unit_cost over all products.
func (r *productRepository) TotalInventoryValue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(current_stock * unit_cost), 0) FROM products`).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum inventory value: %w", err)
	}
	return total, nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID, &product.SKU, &product.Name, &product.Category, &product.UnitCost,
		&product.CurrentStock, &product.ReorderPoint, &product.SupplierID,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}
