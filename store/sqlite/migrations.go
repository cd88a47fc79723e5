package sqlite

import (
	"context"
	"fmt"

	stockledger "github.com/quayside/stockledger"
)

// migration is one schema step. Steps run in order inside Migrate,
// each at most once per database, tracked in stockledger_migrations.
type migration struct {
	Name    string
	Version string
	SQL     string
}

var migrations = []migration{
	{
		Name:    "create_stock_records",
		Version: "20250301000001",
		SQL: `
CREATE TABLE IF NOT EXISTS stockledger_stock_records (
    sku_id             TEXT PRIMARY KEY,
    total_quantity     INTEGER NOT NULL DEFAULT 0 CHECK (total_quantity >= 0),
    reserved_quantity  INTEGER NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0 AND reserved_quantity <= total_quantity),
    warning_threshold  INTEGER NOT NULL DEFAULT 0,
    critical_threshold INTEGER NOT NULL DEFAULT 0,
    is_active          BOOLEAN NOT NULL DEFAULT 1,
    created_at         TIMESTAMP NOT NULL,
    updated_at         TIMESTAMP NOT NULL
);
`,
	},
	{
		Name:    "create_reservations",
		Version: "20250301000002",
		SQL: `
CREATE TABLE IF NOT EXISTS stockledger_reservations (
    id           TEXT PRIMARY KEY,
    sku_id       TEXT NOT NULL REFERENCES stockledger_stock_records (sku_id),
    kind         TEXT NOT NULL,
    reference_id TEXT NOT NULL DEFAULT '',
    quantity     INTEGER NOT NULL CHECK (quantity > 0),
    expires_at   TIMESTAMP NOT NULL,
    is_active    BOOLEAN NOT NULL DEFAULT 1,
    released_at  TIMESTAMP,
    created_at   TIMESTAMP NOT NULL,
    updated_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stockledger_rsv_sku ON stockledger_reservations (sku_id);
CREATE INDEX IF NOT EXISTS idx_stockledger_rsv_reference ON stockledger_reservations (reference_id);
CREATE INDEX IF NOT EXISTS idx_stockledger_rsv_expiry ON stockledger_reservations (expires_at) WHERE is_active;
`,
	},
	{
		Name:    "create_audit_entries",
		Version: "20250301000003",
		SQL: `
CREATE TABLE IF NOT EXISTS stockledger_audit_entries (
    id               TEXT PRIMARY KEY,
    sku_id           TEXT NOT NULL,
    transaction_type TEXT NOT NULL,
    quantity_change  INTEGER NOT NULL,
    quantity_before  INTEGER NOT NULL,
    quantity_after   INTEGER NOT NULL,
    reservation_id   TEXT,
    reference        TEXT NOT NULL DEFAULT '',
    reason           TEXT NOT NULL DEFAULT '',
    operator         TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stockledger_audit_sku_created ON stockledger_audit_entries (sku_id, created_at);
`,
	},
}

// Migrate creates the required tables and indexes. It is safe to call
// on every start: applied versions are skipped. The immediate
// transaction serializes concurrent migrators.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", stockledger.ErrMigrationFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	ensure := `
CREATE TABLE IF NOT EXISTS stockledger_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT (datetime('now'))
)`
	if _, err := tx.ExecContext(ctx, ensure); err != nil {
		return fmt.Errorf("%w: ensure version table: %v", stockledger.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		var applied bool
		check := `SELECT EXISTS (SELECT 1 FROM stockledger_migrations WHERE version = ?)`
		if err := tx.QueryRowContext(ctx, check, m.Version).Scan(&applied); err != nil {
			return fmt.Errorf("%w: check %s: %v", stockledger.ErrMigrationFailed, m.Name, err)
		}
		if applied {
			continue
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("%w: apply %s: %v", stockledger.ErrMigrationFailed, m.Name, err)
		}
		record := `INSERT INTO stockledger_migrations (version, name) VALUES (?, ?)`
		if _, err := tx.ExecContext(ctx, record, m.Version, m.Name); err != nil {
			return fmt.Errorf("%w: record %s: %v", stockledger.ErrMigrationFailed, m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", stockledger.ErrMigrationFailed, err)
	}
	return nil
}
