package postgres

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

// migrationLockID serializes concurrent Migrate calls across processes
// via pg_advisory_lock.
const migrationLockID = 824461551

var migrations = []migration{
	{
		Name:    "create_stock_records",
		Version: "20250301000001",
		SQL: `
CREATE TABLE IF NOT EXISTS stockledger_stock_records (
    sku_id             TEXT PRIMARY KEY,
    total_quantity     BIGINT NOT NULL DEFAULT 0 CHECK (total_quantity >= 0),
    reserved_quantity  BIGINT NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0 AND reserved_quantity <= total_quantity),
    warning_threshold  BIGINT NOT NULL DEFAULT 0,
    critical_threshold BIGINT NOT NULL DEFAULT 0,
    is_active          BOOLEAN NOT NULL DEFAULT TRUE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_stockledger_records_low ON stockledger_stock_records (is_active, (GREATEST(total_quantity - reserved_quantity, 0)));
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
    quantity     BIGINT NOT NULL CHECK (quantity > 0),
    expires_at   TIMESTAMPTZ NOT NULL,
    is_active    BOOLEAN NOT NULL DEFAULT TRUE,
    released_at  TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    quantity_change  BIGINT NOT NULL,
    quantity_before  BIGINT NOT NULL,
    quantity_after   BIGINT NOT NULL,
    reservation_id   TEXT,
    reference        TEXT NOT NULL DEFAULT '',
    reason           TEXT NOT NULL DEFAULT '',
    operator         TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_stockledger_audit_sku_created ON stockledger_audit_entries (sku_id, created_at);
`,
	},
}

// Migrate creates the required tables and indexes. It is safe to call
// on every start: applied versions are skipped.
func (s *Store) Migrate(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire conn: %v", stockledger.ErrMigrationFailed, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("%w: advisory lock: %v", stockledger.ErrMigrationFailed, err)
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, migrationLockID) //nolint:errcheck // best-effort, session end releases it

	ensure := `
CREATE TABLE IF NOT EXISTS stockledger_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := conn.Exec(ctx, ensure); err != nil {
		return fmt.Errorf("%w: ensure version table: %v", stockledger.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		var applied bool
		check := `SELECT EXISTS (SELECT 1 FROM stockledger_migrations WHERE version = $1)`
		if err := conn.QueryRow(ctx, check, m.Version).Scan(&applied); err != nil {
			return fmt.Errorf("%w: check %s: %v", stockledger.ErrMigrationFailed, m.Name, err)
		}
		if applied {
			continue
		}

		if _, err := conn.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%w: apply %s: %v", stockledger.ErrMigrationFailed, m.Name, err)
		}
		record := `INSERT INTO stockledger_migrations (version, name) VALUES ($1, $2)`
		if _, err := conn.Exec(ctx, record, m.Version, m.Name); err != nil {
			return fmt.Errorf("%w: record %s: %v", stockledger.ErrMigrationFailed, m.Name, err)
		}
	}
	return nil
}
