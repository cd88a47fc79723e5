// Package sqlite implements the ledger store on SQLite. It suits
// single-process deployments and tests that need persistence without
// running a database server.
//
// SQLite allows one writer at a time, so per-SKU exclusivity degrades
// to a global write lock. That is stricter than required and preserves
// every ordering guarantee; transactions open with BEGIN IMMEDIATE to
// take the write lock up front instead of deadlocking on upgrade.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	stockledger "github.com/quayside/stockledger"
	"github.com/quayside/stockledger/audit"
	"github.com/quayside/stockledger/id"
	"github.com/quayside/stockledger/reservation"
	"github.com/quayside/stockledger/stock"
	ledgerstore "github.com/quayside/stockledger/store"
)

// compile-time interface checks
var (
	_ ledgerstore.Store = (*Store)(nil)
	_ ledgerstore.Tx    = (*storeTx)(nil)
)

// Store implements store.Store on a SQLite database.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle. The handle should have been
// opened with the pragmas Open applies; Close closes it.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the database file at path, creating it if absent.
// Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("stockledger/sqlite: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck // open failed, nothing to save
		return nil, fmt.Errorf("%w: %v", stockledger.ErrStoreNotReady, err)
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", stockledger.ErrStoreNotReady, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier covers both *sql.DB and *sql.Tx so the scan helpers serve
// plain reads and transactional reads alike.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ==================== Stock ====================

const stockColumns = `sku_id, total_quantity, reserved_quantity, warning_threshold, critical_threshold, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStock(row rowScanner) (*stock.Record, error) {
	var r stock.Record
	err := row.Scan(
		&r.SKUID,
		&r.TotalQuantity,
		&r.ReservedQuantity,
		&r.WarningThreshold,
		&r.CriticalThreshold,
		&r.Active,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func getStock(ctx context.Context, q querier, skuID string) (*stock.Record, error) {
	query := `SELECT ` + stockColumns + ` FROM stockledger_stock_records WHERE sku_id = ?`

	rec, err := scanStock(q.QueryRowContext(ctx, query, skuID))
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrStockNotFound
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return rec, nil
}

func (s *Store) GetStock(ctx context.Context, skuID string) (*stock.Record, error) {
	return getStock(ctx, s.db, skuID)
}

func (s *Store) BatchGetStock(ctx context.Context, skuIDs []string) ([]*stock.Record, error) {
	if len(skuIDs) == 0 {
		return []*stock.Record{}, nil
	}

	placeholders := strings.Repeat("?, ", len(skuIDs))
	placeholders = placeholders[:len(placeholders)-2]
	args := make([]any, len(skuIDs))
	for i, skuID := range skuIDs {
		args[i] = skuID
	}

	query := `SELECT ` + stockColumns + ` FROM stockledger_stock_records WHERE sku_id IN (` + placeholders + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch get stock: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	bySKU := make(map[string]*stock.Record, len(skuIDs))
	for rows.Next() {
		rec, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("batch get stock: %w", err)
		}
		bySKU[rec.SKUID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch get stock: %w", err)
	}

	// Input order, duplicates collapsed, unknown SKUs omitted.
	result := make([]*stock.Record, 0, len(bySKU))
	for _, skuID := range skuIDs {
		if rec, ok := bySKU[skuID]; ok {
			result = append(result, rec)
			delete(bySKU, skuID)
		}
	}
	return result, nil
}

func (s *Store) ListLowStock(ctx context.Context, level stock.Level, opts stock.ListOpts) ([]*stock.Record, error) {
	// critical <= warning always holds, so "at level or worse" is a
	// single availability comparison per level.
	var cond string
	switch level {
	case stock.LevelOutOfStock:
		cond = `MAX(total_quantity - reserved_quantity, 0) = 0`
	case stock.LevelCritical:
		cond = `MAX(total_quantity - reserved_quantity, 0) <= critical_threshold`
	case stock.LevelWarning:
		cond = `MAX(total_quantity - reserved_quantity, 0) <= warning_threshold`
	default:
		cond = `1`
	}

	query := `SELECT ` + stockColumns + ` FROM stockledger_stock_records WHERE is_active AND ` + cond + ` ORDER BY sku_id`
	args := []any{}
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	result := make([]*stock.Record, 0)
	for rows.Next() {
		rec, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("list low stock: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return result, nil
}

// ==================== Reservations ====================

const reservationColumns = `id, sku_id, kind, reference_id, quantity, expires_at, is_active, released_at, created_at, updated_at`

func scanReservation(row rowScanner) (*reservation.Reservation, error) {
	var (
		r          reservation.Reservation
		rawID      string
		kind       string
		releasedAt sql.NullTime
	)
	err := row.Scan(
		&rawID,
		&r.SKUID,
		&kind,
		&r.ReferenceID,
		&r.Quantity,
		&r.ExpiresAt,
		&r.Active,
		&releasedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Kind = reservation.Kind(kind)
	if releasedAt.Valid {
		t := releasedAt.Time
		r.ReleasedAt = &t
	}
	r.ID, err = id.ParseReservationID(rawID)
	if err != nil {
		return nil, fmt.Errorf("reservation id %q: %w", rawID, err)
	}
	return &r, nil
}

func getReservation(ctx context.Context, q querier, reservationID id.ReservationID) (*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stockledger_reservations WHERE id = ?`

	rsv, err := scanReservation(q.QueryRowContext(ctx, query, reservationID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return rsv, nil
}

func (s *Store) GetReservation(ctx context.Context, reservationID id.ReservationID) (*reservation.Reservation, error) {
	return getReservation(ctx, s.db, reservationID)
}

func (s *Store) ListReservations(ctx context.Context, q reservation.Query) ([]*reservation.Reservation, error) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if q.SKUID != "" {
		conds = append(conds, "sku_id = ?")
		args = append(args, q.SKUID)
	}
	if q.ReferenceID != "" {
		conds = append(conds, "reference_id = ?")
		args = append(args, q.ReferenceID)
	}
	if q.ActiveOnly {
		conds = append(conds, "is_active")
	}

	query := `SELECT ` + reservationColumns + ` FROM stockledger_reservations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	if q.Offset > 0 {
		if q.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	result := make([]*reservation.Reservation, 0)
	for rows.Next() {
		rsv, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("list reservations: %w", err)
		}
		result = append(result, rsv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return result, nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, asOf time.Time, limit int) ([]*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stockledger_reservations WHERE is_active AND expires_at <= ? ORDER BY expires_at, id`
	args := []any{asOf}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	result := make([]*reservation.Reservation, 0)
	for rows.Next() {
		rsv, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("list expired reservations: %w", err)
		}
		result = append(result, rsv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return result, nil
}

// ==================== Audit ====================

const auditColumns = `id, sku_id, transaction_type, quantity_change, quantity_before, quantity_after, reservation_id, reference, reason, operator, created_at`

func scanAuditEntry(row rowScanner) (*audit.Entry, error) {
	var (
		e         audit.Entry
		rawID     string
		entryType string
		rsvID     sql.NullString
	)
	err := row.Scan(
		&rawID,
		&e.SKUID,
		&entryType,
		&e.QuantityChange,
		&e.QuantityBefore,
		&e.QuantityAfter,
		&rsvID,
		&e.Reference,
		&e.Reason,
		&e.Operator,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Type = audit.Type(entryType)
	e.ID, err = id.ParseAuditEntryID(rawID)
	if err != nil {
		return nil, fmt.Errorf("audit entry id %q: %w", rawID, err)
	}
	if rsvID.Valid {
		e.ReservationID, err = id.ParseReservationID(rsvID.String)
		if err != nil {
			return nil, fmt.Errorf("audit reservation id %q: %w", rsvID.String, err)
		}
	}
	return &e, nil
}

func (s *Store) ListAuditEntries(ctx context.Context, skuID string, opts audit.QueryOpts) ([]*audit.Entry, error) {
	conds := []string{"sku_id = ?"}
	args := []any{skuID}
	if !opts.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, opts.From)
	}
	if !opts.To.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, opts.To)
	}

	query := `SELECT ` + auditColumns + ` FROM stockledger_audit_entries WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY created_at, id`
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	result := make([]*audit.Entry, 0)
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list audit entries: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return result, nil
}

// ==================== Transactional writes ====================

// Update runs fn in one immediate transaction. skuIDs is accepted for
// interface compatibility; the database-wide write lock already covers
// every SKU in the batch.
func (s *Store) Update(ctx context.Context, skuIDs []string, fn func(ctx context.Context, tx ledgerstore.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", stockledger.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(ctx, &storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", stockledger.ErrTransactionFailed, err)
	}
	return nil
}

// storeTx adapts a database/sql transaction to store.Tx.
type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) GetStock(ctx context.Context, skuID string) (*stock.Record, error) {
	return getStock(ctx, t.tx, skuID)
}

func (t *storeTx) InsertStock(ctx context.Context, r *stock.Record) error {
	query := `INSERT INTO stockledger_stock_records (` + stockColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.tx.ExecContext(ctx, query,
		r.SKUID,
		r.TotalQuantity,
		r.ReservedQuantity,
		r.WarningThreshold,
		r.CriticalThreshold,
		r.Active,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return stockledger.ErrStockExists
		}
		return fmt.Errorf("tx insert stock: %w", err)
	}
	return nil
}

func (t *storeTx) UpdateStock(ctx context.Context, r *stock.Record) error {
	query := `
UPDATE stockledger_stock_records
SET total_quantity = ?, reserved_quantity = ?, warning_threshold = ?, critical_threshold = ?, is_active = ?, updated_at = ?
WHERE sku_id = ?`

	res, err := t.tx.ExecContext(ctx, query,
		r.TotalQuantity,
		r.ReservedQuantity,
		r.WarningThreshold,
		r.CriticalThreshold,
		r.Active,
		r.UpdatedAt,
		r.SKUID,
	)
	if err != nil {
		return fmt.Errorf("tx update stock: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tx update stock: %w", err)
	}
	if rows == 0 {
		return stockledger.ErrStockNotFound
	}
	return nil
}

func (t *storeTx) GetReservation(ctx context.Context, reservationID id.ReservationID) (*reservation.Reservation, error) {
	return getReservation(ctx, t.tx, reservationID)
}

func (t *storeTx) InsertReservation(ctx context.Context, rsv *reservation.Reservation) error {
	query := `INSERT INTO stockledger_reservations (` + reservationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.tx.ExecContext(ctx, query,
		rsv.ID.String(),
		rsv.SKUID,
		string(rsv.Kind),
		rsv.ReferenceID,
		rsv.Quantity,
		rsv.ExpiresAt,
		rsv.Active,
		nullableTime(rsv.ReleasedAt),
		rsv.CreatedAt,
		rsv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("tx insert reservation: %w", err)
	}
	return nil
}

func (t *storeTx) UpdateReservation(ctx context.Context, rsv *reservation.Reservation) error {
	// Only the termination fields ever change.
	query := `
UPDATE stockledger_reservations
SET is_active = ?, released_at = ?, updated_at = ?
WHERE id = ?`

	res, err := t.tx.ExecContext(ctx, query,
		rsv.Active,
		nullableTime(rsv.ReleasedAt),
		rsv.UpdatedAt,
		rsv.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("tx update reservation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("tx update reservation: %w", err)
	}
	if rows == 0 {
		return stockledger.ErrReservationNotFound
	}
	return nil
}

func (t *storeTx) AppendAuditEntry(ctx context.Context, e *audit.Entry) error {
	query := `INSERT INTO stockledger_audit_entries (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var rsvID any
	if !e.ReservationID.IsNil() {
		rsvID = e.ReservationID.String()
	}

	_, err := t.tx.ExecContext(ctx, query,
		e.ID.String(),
		e.SKUID,
		string(e.Type),
		e.QuantityChange,
		e.QuantityBefore,
		e.QuantityAfter,
		rsvID,
		e.Reference,
		e.Reason,
		e.Operator,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("tx append audit entry: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// nullableTime returns the value for an optional timestamp column,
// NULL when nil.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation checks for a SQLite unique or primary key
// constraint error.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || serr.ExtendedCode == sqlite3.ErrConstraintUnique
}
