// Package postgres implements the ledger store on PostgreSQL via pgx.
//
// Per-SKU exclusivity comes from row locks: every Update runs in one
// transaction that takes SELECT ... FOR UPDATE on its SKUs in ascending
// order before the callback sees the transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns pool configuration and
// keeps ownership; Close closes the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("stockledger/postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", stockledger.ErrStoreNotReady, err)
	}
	return &Store{pool: pool}, nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", stockledger.ErrStoreNotReady, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Stock reads ====================

func (s *Store) GetStock(ctx context.Context, skuID string) (*stock.Record, error) {
	query := `SELECT ` + stockColumns + ` FROM stockledger_stock_records WHERE sku_id = $1`

	rec, err := scanStock(s.pool.QueryRow(ctx, query, skuID))
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrStockNotFound
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return rec, nil
}

func (s *Store) BatchGetStock(ctx context.Context, skuIDs []string) ([]*stock.Record, error) {
	if len(skuIDs) == 0 {
		return []*stock.Record{}, nil
	}

	query := `SELECT ` + stockColumns + ` FROM stockledger_stock_records WHERE sku_id = ANY($1)`

	rows, err := s.pool.Query(ctx, query, skuIDs)
	if err != nil {
		return nil, fmt.Errorf("batch get stock: %w", err)
	}
	defer rows.Close()

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
		cond = `GREATEST(total_quantity - reserved_quantity, 0) = 0`
	case stock.LevelCritical:
		cond = `GREATEST(total_quantity - reserved_quantity, 0) <= critical_threshold`
	case stock.LevelWarning:
		cond = `GREATEST(total_quantity - reserved_quantity, 0) <= warning_threshold`
	default:
		cond = `TRUE`
	}

	query := `SELECT ` + stockColumns + ` FROM stockledger_stock_records WHERE is_active AND ` + cond + ` ORDER BY sku_id`
	args := []any{}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

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

// ==================== Reservation reads ====================

func (s *Store) GetReservation(ctx context.Context, reservationID id.ReservationID) (*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stockledger_reservations WHERE id = $1`

	rsv, err := scanReservation(s.pool.QueryRow(ctx, query, reservationID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return rsv, nil
}

func (s *Store) ListReservations(ctx context.Context, q reservation.Query) ([]*reservation.Reservation, error) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if q.SKUID != "" {
		args = append(args, q.SKUID)
		conds = append(conds, fmt.Sprintf("sku_id = $%d", len(args)))
	}
	if q.ReferenceID != "" {
		args = append(args, q.ReferenceID)
		conds = append(conds, fmt.Sprintf("reference_id = $%d", len(args)))
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
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

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
	query := `SELECT ` + reservationColumns + ` FROM stockledger_reservations WHERE is_active AND expires_at <= $1 ORDER BY expires_at, id`
	args := []any{asOf}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

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

// ==================== Audit reads ====================

func (s *Store) ListAuditEntries(ctx context.Context, skuID string, opts audit.QueryOpts) ([]*audit.Entry, error) {
	conds := []string{"sku_id = $1"}
	args := []any{skuID}
	if !opts.From.IsZero() {
		args = append(args, opts.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !opts.To.IsZero() {
		args = append(args, opts.To)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + auditColumns + ` FROM stockledger_audit_entries WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY created_at, id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

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

// Update opens one transaction, locks the given SKUs' rows in the
// order given, and runs fn against that transaction. A callback error
// rolls everything back; otherwise the commit publishes the whole
// write set at once.
func (s *Store) Update(ctx context.Context, skuIDs []string, fn func(ctx context.Context, tx ledgerstore.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", stockledger.ErrTransactionFailed, err)
	}
	defer pgtx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if len(skuIDs) > 0 {
		// Row locks in the callers' ascending sku order. A SKU with no
		// row yet locks nothing; its insert serializes on the primary
		// key instead.
		lockQuery := `SELECT sku_id FROM stockledger_stock_records WHERE sku_id = ANY($1) ORDER BY sku_id FOR UPDATE`
		if _, err := pgtx.Exec(ctx, lockQuery, skuIDs); err != nil {
			return fmt.Errorf("%w: lock skus: %v", stockledger.ErrTransactionFailed, err)
		}
	}

	if err := fn(ctx, &storeTx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", stockledger.ErrTransactionFailed, err)
	}
	return nil
}

// storeTx adapts a pgx transaction to store.Tx. Reads observe the
// transaction's own writes because they run on the same connection.
type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) GetStock(ctx context.Context, skuID string) (*stock.Record, error) {
	query := `SELECT ` + stockColumns + ` FROM stockledger_stock_records WHERE sku_id = $1`

	rec, err := scanStock(t.tx.QueryRow(ctx, query, skuID))
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrStockNotFound
		}
		return nil, fmt.Errorf("tx get stock: %w", err)
	}
	return rec, nil
}

func (t *storeTx) InsertStock(ctx context.Context, r *stock.Record) error {
	query := `INSERT INTO stockledger_stock_records (` + stockColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := t.tx.Exec(ctx, query,
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
SET total_quantity = $2, reserved_quantity = $3, warning_threshold = $4, critical_threshold = $5, is_active = $6, updated_at = $7
WHERE sku_id = $1`

	tag, err := t.tx.Exec(ctx, query,
		r.SKUID,
		r.TotalQuantity,
		r.ReservedQuantity,
		r.WarningThreshold,
		r.CriticalThreshold,
		r.Active,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("tx update stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stockledger.ErrStockNotFound
	}
	return nil
}

func (t *storeTx) GetReservation(ctx context.Context, reservationID id.ReservationID) (*reservation.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stockledger_reservations WHERE id = $1`

	rsv, err := scanReservation(t.tx.QueryRow(ctx, query, reservationID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, stockledger.ErrReservationNotFound
		}
		return nil, fmt.Errorf("tx get reservation: %w", err)
	}
	return rsv, nil
}

func (t *storeTx) InsertReservation(ctx context.Context, rsv *reservation.Reservation) error {
	query := `INSERT INTO stockledger_reservations (` + reservationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := t.tx.Exec(ctx, query,
		rsv.ID.String(),
		rsv.SKUID,
		string(rsv.Kind),
		rsv.ReferenceID,
		rsv.Quantity,
		rsv.ExpiresAt,
		rsv.Active,
		rsv.ReleasedAt,
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
SET is_active = $2, released_at = $3, updated_at = $4
WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query,
		rsv.ID.String(),
		rsv.Active,
		rsv.ReleasedAt,
		rsv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("tx update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return stockledger.ErrReservationNotFound
	}
	return nil
}

func (t *storeTx) AppendAuditEntry(ctx context.Context, e *audit.Entry) error {
	query := `INSERT INTO stockledger_audit_entries (` + auditColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := t.tx.Exec(ctx, query,
		e.ID.String(),
		e.SKUID,
		string(e.Type),
		e.QuantityChange,
		e.QuantityBefore,
		e.QuantityAfter,
		nullableID(e.ReservationID),
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

// isNoRows checks for the pgx no-rows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isUniqueViolation checks for a Postgres unique_violation error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
