package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pagestack/bookstore-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestOrdersMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "*_create_orders_and_payments_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payments",
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS payment_orders",
		"CONSTRAINT ck_payments_refund_within_total CHECK (refunded_amount_cents <= total_amount_cents)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_refund_status",
		"PRIMARY KEY (payment_id, order_id)",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWebhookMigrationEnforcesEventUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_webhook_and_outbox_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS webhook_events",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_event_id",
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE INDEX IF NOT EXISTS idx_outbox_events_unpublished",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCatalogMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "*_create_catalog_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS products",
		"quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0)",
		"in_stock BOOLEAN NOT NULL DEFAULT FALSE",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_users_email",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
