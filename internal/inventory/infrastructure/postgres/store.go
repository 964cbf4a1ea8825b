package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/application"
	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/domain"
)

// Store persists ledger rows, reservations and the outbox in Postgres.
// Row locking is plain SELECT ... FOR UPDATE inside the unit-of-work
// transaction, which gives the per-row mutual exclusion every allocation,
// release and finalize step relies on.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS inventory (
	id            TEXT PRIMARY KEY,
	product_id    TEXT NOT NULL,
	warehouse_id  TEXT NOT NULL,
	on_hand       INT NOT NULL DEFAULT 0,
	reserved      INT NOT NULL DEFAULT 0,
	reorder_level INT NOT NULL DEFAULT 10,
	max_stock     INT NOT NULL DEFAULT 1000,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (product_id, warehouse_id),
	CHECK (reserved >= 0 AND reserved <= on_hand)
);

CREATE TABLE IF NOT EXISTS reservations (
	id           TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL,
	product_id   TEXT NOT NULL,
	warehouse_id TEXT NOT NULL,
	quantity     INT NOT NULL CHECK (quantity > 0),
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	confirmed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_reservations_order ON reservations (order_id);
CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations (status, expires_at);

CREATE TABLE IF NOT EXISTS cancelled_orders (
	order_id     TEXT PRIMARY KEY,
	cancelled_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox (
	id          BIGSERIAL PRIMARY KEY,
	topic       TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	type        TEXT NOT NULL,
	payload     BYTEA NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	relay_id    TEXT,
	lease_until TIMESTAMPTZ,
	retry_count INT NOT NULL DEFAULT 0,
	last_error  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (status, id);
`

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &ledgerTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const rowColumns = `id, product_id, warehouse_id, on_hand, reserved, reorder_level, max_stock, status, created_at, updated_at`

func (s *Store) ProductRows(ctx context.Context, productID string) ([]domain.LedgerRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rowColumns+` FROM inventory WHERE product_id=$1 ORDER BY warehouse_id`, productID)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (s *Store) AvailableQuantity(ctx context.Context, productID string) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(on_hand - reserved), 0)
		FROM inventory
		WHERE product_id=$1 AND status <> 'DISCONTINUED'`, productID).Scan(&total)
	return total, err
}

func (s *Store) LowStockRows(ctx context.Context) ([]domain.LedgerRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+rowColumns+`
		FROM inventory
		WHERE on_hand - reserved <= reorder_level AND status <> 'DISCONTINUED'
		ORDER BY product_id, warehouse_id`)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (s *Store) ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return queryReservations(ctx, s.pool, `WHERE order_id=$1 ORDER BY created_at, id`, orderID)
}

func (s *Store) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return queryReservations(ctx, s.pool,
		`WHERE status='PENDING' AND expires_at < $1 ORDER BY expires_at LIMIT $2`, now, limit)
}

type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) LockAvailableRows(ctx context.Context, productID string) ([]domain.LedgerRow, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+rowColumns+`
		FROM inventory
		WHERE product_id=$1 AND on_hand - reserved > 0 AND status <> 'DISCONTINUED'
		ORDER BY on_hand - reserved DESC, warehouse_id
		FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (t *ledgerTx) LockRow(ctx context.Context, productID, warehouseID string) (domain.LedgerRow, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+rowColumns+`
		FROM inventory
		WHERE product_id=$1 AND warehouse_id=$2
		FOR UPDATE`, productID, warehouseID)
	r, err := scanRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LedgerRow{}, domain.ErrRowNotFound
	}
	return r, err
}

func (t *ledgerTx) HasProduct(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory WHERE product_id=$1)`, productID).Scan(&exists)
	return exists, err
}

func (t *ledgerTx) SaveRow(ctx context.Context, row domain.LedgerRow) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE inventory
		SET on_hand=$2, reserved=$3, reorder_level=$4, max_stock=$5, status=$6, updated_at=now()
		WHERE id=$1`,
		row.ID, row.OnHand, row.Reserved, row.ReorderLevel, row.MaxStock, row.Status)
	return err
}

func (t *ledgerTx) InsertRow(ctx context.Context, row domain.LedgerRow) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory (`+rowColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		row.ID, row.ProductID, row.WarehouseID, row.OnHand, row.Reserved,
		row.ReorderLevel, row.MaxStock, row.Status, row.CreatedAt, row.UpdatedAt)
	return err
}

func (t *ledgerTx) InsertReservation(ctx context.Context, res domain.Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations (id, order_id, product_id, warehouse_id, quantity, status, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		res.ID, res.OrderID, res.ProductID, res.WarehouseID, res.Quantity, res.State, res.CreatedAt, res.ExpiresAt)
	return err
}

func (t *ledgerTx) ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return queryReservations(ctx, t.tx, `WHERE order_id=$1 ORDER BY created_at, id`, orderID)
}

func (t *ledgerTx) PendingByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return queryReservations(ctx, t.tx, `WHERE order_id=$1 AND status='PENDING' ORDER BY created_at, id`, orderID)
}

func (t *ledgerTx) MarkOrderCancelled(ctx context.Context, orderID string) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cancelled_orders (order_id) VALUES ($1)
		ON CONFLICT (order_id) DO NOTHING`, orderID)
	return err
}

func (t *ledgerTx) OrderCancelled(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cancelled_orders WHERE order_id=$1)`, orderID).Scan(&exists)
	return exists, err
}

// TransitionReservation is a conditional update keyed on the current
// state: only one of several racing transitions can see status=from.
func (t *ledgerTx) TransitionReservation(ctx context.Context, id string, from, to domain.ReservationState, at time.Time) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, nil
	}
	var stamp string
	switch to {
	case domain.ReservationConfirmed:
		stamp = `, confirmed_at=$4`
	case domain.ReservationCancelled:
		stamp = `, cancelled_at=$4`
	default:
		stamp = ``
	}
	args := []any{id, from, to}
	if stamp != "" {
		args = append(args, at)
	}
	ct, err := t.tx.Exec(ctx, `UPDATE reservations SET status=$3`+stamp+` WHERE id=$1 AND status=$2`, args...)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *ledgerTx) AppendEvent(ctx context.Context, topic, eventType, key string, payload []byte) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (topic, aggregate_id, type, payload, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,'pending')`,
		topic, key, eventType, payload, traceparentFrom(ctx))
	return err
}

func traceparentFrom(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier["traceparent"]
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryReservations(ctx context.Context, q querier, where string, args ...any) ([]domain.Reservation, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, warehouse_id, quantity, status, created_at, expires_at, confirmed_at, cancelled_at
		FROM reservations `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.WarehouseID, &res.Quantity,
			&res.State, &res.CreatedAt, &res.ExpiresAt, &res.ConfirmedAt, &res.CancelledAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanRows(rows pgx.Rows) ([]domain.LedgerRow, error) {
	defer rows.Close()
	var out []domain.LedgerRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRow(row pgx.Row) (domain.LedgerRow, error) {
	var r domain.LedgerRow
	err := row.Scan(&r.ID, &r.ProductID, &r.WarehouseID, &r.OnHand, &r.Reserved,
		&r.ReorderLevel, &r.MaxStock, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
