// seed-sample-data populates the database with a small demo catalog:
// three suppliers, six products, and a deterministic outbound demand
// history the forecasting pipeline can chew on immediately.
//
// The generated history follows the demand tiers of the demo dataset:
// electronics move fastest, accessories moderately, office items slowest,
// with a weekend bump on all of them. Output is reproducible: the RNG is
// seeded with a constant, so reseeding yields the same ledger.
//
// Usage: go run ./scripts/seed-sample-data [-days=90] [-wipe]
//
// Database connection: Uses standard PG* environment variables
//
// Flags:
//
//	-days  Days of transaction history to generate (default: 90)
//	-wipe  Delete existing rows from all tables before seeding (default: false)
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
)

// randSeed fixes the generated ledger; change it to get a different demo set.
const randSeed = 42

type supplierSeed struct {
	name         string
	contactEmail string
	leadTimeDays int
	reliability  float64
	riskLevel    string
}

type productSeed struct {
	sku          string
	name         string
	category     string
	unitCost     float64
	currentStock int
	reorderPoint int
	supplier     string

	// daily outbound demand range, before the weekend bump
	demandMin int
	demandMax int
}

var suppliers = []supplierSeed{
	{"Acme Supply Co", "orders@acmesupply.example", 14, 0.95, "low"},
	{"TechFlow Distribution", "fulfillment@techflow.example", 7, 0.88, "medium"},
	{"Pacific Components", "sales@pacificcomponents.example", 28, 0.72, "high"},
}

var products = []productSeed{
	{"WH-001", "Wireless Headphones", "Electronics", 89.99, 45, 25, "TechFlow Distribution", 5, 12},
	{"BS-002", "Bluetooth Speaker", "Electronics", 59.99, 32, 20, "TechFlow Distribution", 5, 12},
	{"UC-003", "USB-C Cable", "Accessories", 12.99, 120, 60, "Acme Supply Co", 3, 8},
	{"PC-004", "Phone Case", "Accessories", 19.99, 80, 40, "Acme Supply Co", 3, 8},
	{"LS-005", "Laptop Stand", "Office", 34.99, 25, 15, "Pacific Components", 2, 6},
	{"DL-006", "Desk Lamp", "Office", 24.99, 8, 12, "Pacific Components", 2, 6},
}

func main() {
	days := flag.Int("days", 90, "Days of transaction history to generate")
	wipe := flag.Bool("wipe", false, "Delete existing rows before seeding")
	flag.Parse()

	if *days <= 0 {
		fmt.Fprintf(os.Stderr, "-days must be positive, got %d\n", *days)
		os.Exit(1)
	}

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	if *wipe {
		fmt.Println("Wiping existing data...")
		if err := wipeTables(ctx, conn); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to wipe tables: %v\n", err)
			os.Exit(1)
		}
	}

	supplierIDs, err := seedSuppliers(ctx, conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed suppliers: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d suppliers\n", len(supplierIDs))

	productIDs, err := seedProducts(ctx, conn, supplierIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed products: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d products\n", len(productIDs))

	count, err := seedTransactions(ctx, conn, productIDs, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to seed transactions: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d transactions covering %d days\n", count, *days)
	fmt.Println("Done. Trigger a pipeline run with: curl -X POST localhost:8080/api/forecast/run")
}

func wipeTables(ctx context.Context, conn *pgx.Conn) error {
	// Child tables first; alerts and forecasts cascade from products anyway,
	// but explicit order keeps this valid if the FKs ever change.
	for _, table := range []string{"alerts", "forecast_data", "inventory_transactions", "products", "suppliers"} {
		if _, err := conn.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func seedSuppliers(ctx context.Context, conn *pgx.Conn) (map[string]string, error) {
	ids := make(map[string]string, len(suppliers))
	for _, s := range suppliers {
		var id string
		err := conn.QueryRow(ctx, `
			INSERT INTO suppliers (name, contact_email, lead_time_days, reliability_score, risk_level)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, s.name, s.contactEmail, s.leadTimeDays, s.reliability, s.riskLevel).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert %q: %w", s.name, err)
		}
		ids[s.name] = id
	}
	return ids, nil
}

func seedProducts(ctx context.Context, conn *pgx.Conn, supplierIDs map[string]string) (map[string]string, error) {
	ids := make(map[string]string, len(products))
	for _, p := range products {
		supplierID, ok := supplierIDs[p.supplier]
		if !ok {
			return nil, fmt.Errorf("product %s references unknown supplier %q", p.sku, p.supplier)
		}

		var id string
		err := conn.QueryRow(ctx, `
			INSERT INTO products (sku, name, category, unit_cost, current_stock, reorder_point, supplier_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (sku) DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				unit_cost = EXCLUDED.unit_cost,
				current_stock = EXCLUDED.current_stock,
				reorder_point = EXCLUDED.reorder_point,
				supplier_id = EXCLUDED.supplier_id,
				updated_at = NOW()
			RETURNING id
		`, p.sku, p.name, p.category, p.unitCost, p.currentStock, p.reorderPoint, supplierID).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", p.sku, err)
		}
		ids[p.sku] = id
	}
	return ids, nil
}

func seedTransactions(ctx context.Context, conn *pgx.Conn, productIDs map[string]string, days int) (int, error) {
	rng := rand.New(rand.NewSource(randSeed))
	count := 0

	for _, p := range products {
		productID := productIDs[p.sku]

		for day := days; day >= 1; day-- {
			createdAt := time.Now().UTC().AddDate(0, 0, -day)

			demand := p.demandMin + rng.Intn(p.demandMax-p.demandMin+1)
			if wd := createdAt.Weekday(); wd == time.Saturday || wd == time.Sunday {
				demand = int(float64(demand) * 1.3)
			}
			if demand == 0 {
				continue
			}

			// Outbound movements are stored negative in the ledger.
			_, err := conn.Exec(ctx, `
				INSERT INTO inventory_transactions (product_id, type, quantity, reference, created_at)
				VALUES ($1, 'outbound', $2, $3, $4)
			`, productID, -demand, fmt.Sprintf("TXN-%04d", rng.Intn(9000)+1000), createdAt)
			if err != nil {
				return count, fmt.Errorf("insert outbound for %s: %w", p.sku, err)
			}
			count++

			// A restock lands roughly every two weeks.
			if day%14 == 0 {
				restock := demand * 10
				_, err := conn.Exec(ctx, `
					INSERT INTO inventory_transactions (product_id, type, quantity, reference, created_at)
					VALUES ($1, 'inbound', $2, $3, $4)
				`, productID, restock, fmt.Sprintf("PO-%04d", rng.Intn(9000)+1000), createdAt)
				if err != nil {
					return count, fmt.Errorf("insert inbound for %s: %w", p.sku, err)
				}
				count++
			}
		}
	}

	return count, nil
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "postgres")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "velocityiq")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
