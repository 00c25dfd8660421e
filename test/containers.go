package test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type PostgresSetup struct {
	ConnStr string
	cleanup func()
}

func (p *PostgresSetup) Cleanup() {
	p.cleanup()
}

func SetupPostgres(ctx context.Context, t *testing.T) *PostgresSetup {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("checkout"),
		postgres.WithUsername("checkout"),
		postgres.WithPassword("checkout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	return &PostgresSetup{ConnStr: connStr, cleanup: cleanup}
}

func runMigrations(connStr string) error {
	migrationsPath := getMigrationsPath()

	m, err := migrate.New(migrationsPath, connStr)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func getMigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	testDir := filepath.Dir(filename)
	projectRoot := filepath.Dir(testDir)
	migrationsDir := filepath.Join(projectRoot, "migrations")
	return "file://" + migrationsDir
}

func SetupKafka(ctx context.Context, t *testing.T) ([]string, func()) {
	t.Helper()

	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.8.0",
		kafka.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers, cleanup
}

func OpenDB(t *testing.T, connStr string) *sql.DB {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// SeedVariant inserts a variant with stock spread across the given locations.
func SeedVariant(t *testing.T, db *sql.DB, variantID, productName string, unitPriceCents int64, stock map[string]int) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO variants (id, product_id, product_name, unit_price_cents)
		VALUES ($1, $2, $3, $4)
	`, variantID, "prod-"+variantID, productName, unitPriceCents)
	if err != nil {
		t.Fatalf("failed to seed variant %s: %v", variantID, err)
	}

	for locationID, onHand := range stock {
		_, err := db.Exec(`
			INSERT INTO variant_locations (variant_id, location_id, on_hand)
			VALUES ($1, $2, $3)
		`, variantID, locationID, onHand)
		if err != nil {
			t.Fatalf("failed to seed stock for %s at %s: %v", variantID, locationID, err)
		}
	}
}

// SeedCart creates a cart for the user holding the given variant quantities.
func SeedCart(t *testing.T, db *sql.DB, userID string, lines map[string]int) {
	t.Helper()

	cartID := uuid.New().String()
	_, err := db.Exec(`INSERT INTO carts (id, user_id) VALUES ($1, $2)`, cartID, userID)
	if err != nil {
		t.Fatalf("failed to seed cart for %s: %v", userID, err)
	}

	for variantID, quantity := range lines {
		_, err := db.Exec(`
			INSERT INTO cart_items (id, cart_id, variant_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, uuid.New().String(), cartID, variantID, quantity)
		if err != nil {
			t.Fatalf("failed to seed cart item %s: %v", variantID, err)
		}
	}
}

// ForceExpire rewinds an order's reservation deadline so expiry paths can be
// exercised without waiting out the TTL.
func ForceExpire(t *testing.T, db *sql.DB, orderID string) {
	t.Helper()

	past := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec(`UPDATE orders SET reservation_expires_at = $1 WHERE id = $2`, past, orderID); err != nil {
		t.Fatalf("failed to rewind order expiry: %v", err)
	}
	if _, err := db.Exec(`UPDATE reservations SET expires_at = $1 WHERE order_id = $2`, past, orderID); err != nil {
		t.Fatalf("failed to rewind reservation expiry: %v", err)
	}
}
