//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocityiq/velocityiq-engine/pkg/models"
	"github.com/velocityiq/velocityiq-engine/pkg/testhelpers"
)

// productTestContext holds test dependencies for product repository tests.
type productTestContext struct {
	t            *testing.T
	engineDB     *testhelpers.EngineDB
	repo         ProductRepository
	supplierRepo SupplierRepository
}

// setupProductTest initializes the test context against the shared
// testcontainer and clears the tables the tests touch.
func setupProductTest(t *testing.T) *productTestContext {
	engineDB := testhelpers.GetEngineDB(t)

	ctx := context.Background()
	_, err := engineDB.DB.Exec(ctx,
		`TRUNCATE alerts, forecast_data, inventory_transactions, products, suppliers CASCADE`)
	require.NoError(t, err, "failed to reset tables")

	return &productTestContext{
		t:            t,
		engineDB:     engineDB,
		repo:         NewProductRepository(engineDB.DB),
		supplierRepo: NewSupplierRepository(engineDB.DB),
	}
}

// createTestSupplier creates a supplier for product fixtures.
func (tc *productTestContext) createTestSupplier(ctx context.Context, name string) *models.Supplier {
	tc.t.Helper()
	supplier := &models.Supplier{
		Name:             name,
		LeadTimeDays:     10,
		ReliabilityScore: 0.9,
		RiskLevel:        models.RiskLow,
	}
	require.NoError(tc.t, tc.supplierRepo.Create(ctx, supplier))
	return supplier
}

// createTestProduct creates a product with the given stock levels.
func (tc *productTestContext) createTestProduct(ctx context.Context, sku, name string, stock, reorder int, unitCost string, supplierID *uuid.UUID) *models.Product {
	tc.t.Helper()
	product := &models.Product{
		SKU:          sku,
		Name:         name,
		Category:     "Widgets",
		UnitCost:     decimal.RequireFromString(unitCost),
		CurrentStock: stock,
		ReorderPoint: reorder,
		SupplierID:   supplierID,
	}
	require.NoError(tc.t, tc.repo.Create(ctx, product))
	return product
}

func TestProductRepository_CreateAndGet(t *testing.T) {
	tc := setupProductTest(t)
	ctx := context.Background()

	supplier := tc.createTestSupplier(ctx, "Acme Logistics")
	created := tc.createTestProduct(ctx, "WH-001", "Wireless Headphones", 120, 40, "24.99", &supplier.ID)

	require.NotEqual(t, uuid.Nil, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	got, err := tc.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "WH-001", got.SKU)
	assert.Equal(t, "Wireless Headphones", got.Name)
	assert.Equal(t, 120, got.CurrentStock)
	assert.Equal(t, 40, got.ReorderPoint)
	assert.True(t, got.UnitCost.Equal(decimal.RequireFromString("24.99")),
		"expected unit cost 24.99, got %s", got.UnitCost)
	require.NotNil(t, got.SupplierID)
	assert.Equal(t, supplier.ID, *got.SupplierID)

	bySKU, err := tc.repo.GetBySKU(ctx, "WH-001")
	require.NoError(t, err)
	require.NotNil(t, bySKU)
	assert.Equal(t, created.ID, bySKU.ID)
}

func TestProductRepository_Get_Unknown(t *testing.T) {
	tc := setupProductTest(t)
	ctx := context.Background()

	got, err := tc.repo.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)

	bySKU, err := tc.repo.GetBySKU(ctx, "NO-SUCH-SKU")
	require.NoError(t, err)
	assert.Nil(t, bySKU)
}

func TestProductRepository_Create_DuplicateSKU(t *testing.T) {
	tc := setupProductTest(t)
	ctx := context.Background()

	tc.createTestProduct(ctx, "WH-002", "Bluetooth Speaker", 50, 20, "39.99", nil)

	dup := &models.Product{
		SKU:      "WH-002",
		Name:     "Different Name",
		UnitCost: decimal.RequireFromString("1.00"),
	}
	err := tc.repo.Create(ctx, dup)
	require.Error(t, err, "duplicate SKU must be rejected")
}

func TestProductRepository_List_OrdersByName(t *testing.T) {
	tc := setupProductTest(t)
	ctx := context.Background()

	tc.createTestProduct(ctx, "SKU-C", "Zebra Cable", 10, 5, "2.00", nil)
	tc.createTestProduct(ctx, "SKU-A", "Anvil", 10, 5, "2.00", nil)
	tc.createTestProduct(ctx, "SKU-B", "Monitor Stand", 10, 5, "2.00", nil)

	products, err := tc.repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "Anvil", products[0].Name)
	assert.Equal(t, "Monitor Stand", products[1].Name)
	assert.Equal(t, "Zebra Cable", products[2].Name)
}

func TestProductRepository_ListWithSuppliers(t *testing.T) {
	tc := setupProductTest(t)
	ctx := context.Background()

	supplier := tc.createTestSupplier(ctx, "Global Parts Co")
	tc.createTestProduct(ctx, "SKU-1", "Attached", 10, 5, "5.00", &supplier.ID)
	tc.createTestProduct(ctx, "SKU-2", "Orphan", 10, 5, "5.00", nil)

	products, err := tc.repo.ListWithSuppliers(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)

	attached := products[0]
	require.NotNil(t, attached.Supplier)
	assert.Equal(t, "Global Parts Co", attached.Supplier.Name)
	assert.Equal(t, 10, attached.Supplier.LeadTimeDays)
	assert.InDelta(t, 0.9, attached.Supplier.ReliabilityScore, 0.001)

	orphan := products[1]
	assert.Nil(t, orphan.Supplier)
	assert.Nil(t, orphan.SupplierID)
}

func TestProductRepository_CountsAndInventoryValue(t *testing.T) {
	tc := setupProductTest(t)
	ctx := context.Background()

	tc.createTestProduct(ctx, "SKU-LOW", "Nearly Out", 5, 10, "3.50", nil)
	tc.createTestProduct(ctx, "SKU-EDGE", "At Reorder", 10, 10, "2.00", nil)
	tc.createTestProduct(ctx, "SKU-OK", "Well Stocked", 100, 10, "1.25", nil)

	count, err := tc.repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	lowStock, err := tc.repo.LowStockCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, lowStock, "at-reorder-point counts as low stock")

	// 5*3.50 + 10*2.00 + 100*1.25 = 162.50
	total, err := tc.repo.TotalInventoryValue(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("162.50")),
		"expected inventory value 162.50, got %s", total)
}

func TestSupplierRepository_CreateGetList(t *testing.T) {
	tc := setupProductTest(t)
	ctx := context.Background()

	email := "orders@meridian.example"
	supplier := &models.Supplier{
		Name:             "Meridian Supply",
		ContactEmail:     &email,
		LeadTimeDays:     21,
		ReliabilityScore: 0.72,
		RiskLevel:        models.RiskHigh,
	}
	require.NoError(t, tc.supplierRepo.Create(ctx, supplier))
	require.NotEqual(t, uuid.Nil, supplier.ID)

	got, err := tc.supplierRepo.Get(ctx, supplier.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Meridian Supply", got.Name)
	require.NotNil(t, got.ContactEmail)
	assert.Equal(t, email, *got.ContactEmail)
	assert.Equal(t, 21, got.LeadTimeDays)
	assert.Equal(t, models.RiskHigh, got.RiskLevel)

	missing, err := tc.supplierRepo.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	tc.createTestSupplier(ctx, "Acme Logistics")
	suppliers, err := tc.supplierRepo.List(ctx)
	require.NoError(t, err)
	require.Len(t, suppliers, 2)
	assert.Equal(t, "Acme Logistics", suppliers[0].Name)
	assert.Equal(t, "Meridian Supply", suppliers[1].Name)
}
