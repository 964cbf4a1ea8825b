package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/domain"
)

// Engine allocates order line items across warehouse ledger rows and owns
// every reservation state change. Allocation is all-or-nothing per order:
// the whole attempt runs in one unit of work, so a short line item rolls
// back every row already reserved for the order.
type Engine struct {
	log   *slog.Logger
	store Store
	ttl   time.Duration
	now   func() time.Time
}

type EngineOption func(*Engine)

func WithTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.ttl = ttl }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(log *slog.Logger, store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		log:   log,
		store: store,
		ttl:   domain.DefaultReservationTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Allocate reserves the requested quantities for an order, spilling across
// warehouses per line item in request order. It returns the order's active
// (pending or confirmed) reservations. If reservations for the order
// already exist the call is a duplicate-delivery replay and returns them
// without allocating again.
func (e *Engine) Allocate(ctx context.Context, orderID string, items []domain.OrderItem) ([]domain.Reservation, error) {
	if orderID == "" || len(items) == 0 {
		return nil, fmt.Errorf("%w: order id and items are required", domain.ErrInvalidRequest)
	}
	for _, it := range items {
		if it.ProductID == "" {
			return nil, fmt.Errorf("%w: missing product id", domain.ErrInvalidRequest)
		}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity %d for product %s", domain.ErrInvalidRequest, it.Quantity, it.ProductID)
		}
	}

	now := e.now().UTC()
	var result []domain.Reservation
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.ReservationsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			// Duplicate order.created delivery. Allocating again would
			// double-hold stock, so hand back what the first delivery won.
			e.log.Info("allocation replayed", "order_id", orderID, "reservations", len(existing))
			result = activeOnly(existing)
			return nil
		}
		cancelled, err := tx.OrderCancelled(ctx, orderID)
		if err != nil {
			return err
		}
		if cancelled {
			// The cancel overtook the create. Holding stock now would
			// just wait out the TTL for an order that is already dead.
			e.log.Info("order cancelled before allocation, skipping", "order_id", orderID)
			return nil
		}

		for _, item := range items {
			rows, err := tx.LockAvailableRows(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				known, err := tx.HasProduct(ctx, item.ProductID)
				if err != nil {
					return err
				}
				if !known {
					return fmt.Errorf("%w: unknown product %s", domain.ErrInvalidRequest, item.ProductID)
				}
			}
			remaining := item.Quantity
			for _, row := range rows {
				if remaining == 0 {
					break
				}
				take := min(row.Available(), remaining)
				updated, err := row.Reserve(take)
				if err != nil {
					return err
				}
				if err := tx.SaveRow(ctx, updated); err != nil {
					return err
				}
				res := domain.NewReservation(orderID, item.ProductID, row.WarehouseID, take, now, e.ttl)
				if err := tx.InsertReservation(ctx, res); err != nil {
					return err
				}
				result = append(result, res)
				remaining -= take
			}
			if remaining > 0 {
				// Returning the error aborts the unit of work, releasing
				// every row reserved so far for this order.
				return fmt.Errorf("%w: product %s short by %d", domain.ErrInsufficientStock, item.ProductID, remaining)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConfirmForOrder finalizes the order's pending reservations after payment:
// reserved stock is deducted from on-hand and the reservations become
// CONFIRMED. Reservations already out of PENDING are skipped, which makes
// repeated confirms (and confirms racing the sweeper) harmless.
func (e *Engine) ConfirmForOrder(ctx context.Context, orderID string) (int, error) {
	if orderID == "" {
		return 0, fmt.Errorf("%w: order id is required", domain.ErrInvalidRequest)
	}
	now := e.now().UTC()
	confirmed := 0
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		pending, err := tx.PendingByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, res := range pending {
			won, err := tx.TransitionReservation(ctx, res.ID, domain.ReservationPending, domain.ReservationConfirmed, now)
			if err != nil {
				return err
			}
			if !won {
				continue
			}
			if err := e.applyToRow(ctx, tx, res, domain.LedgerRow.Finalize); err != nil {
				return err
			}
			confirmed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return confirmed, nil
}

// ReleaseForOrder returns the order's pending holds to the available pool
// and cancels the reservations. Confirmed stock has already left and is
// not touched; released/expired reservations are left as they are. The
// order is also tombstoned so an order.created arriving after the cancel
// allocates nothing.
func (e *Engine) ReleaseForOrder(ctx context.Context, orderID string) (int, error) {
	if orderID == "" {
		return 0, fmt.Errorf("%w: order id is required", domain.ErrInvalidRequest)
	}
	now := e.now().UTC()
	released := 0
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.MarkOrderCancelled(ctx, orderID); err != nil {
			return err
		}
		pending, err := tx.PendingByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, res := range pending {
			won, err := tx.TransitionReservation(ctx, res.ID, domain.ReservationPending, domain.ReservationCancelled, now)
			if err != nil {
				return err
			}
			if !won {
				continue
			}
			if err := e.applyToRow(ctx, tx, res, domain.LedgerRow.Release); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// ExpireDue reclaims pending reservations whose TTL has passed. Each
// reservation is its own unit of work so one bad record cannot wedge the
// whole sweep.
func (e *Engine) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := e.store.ExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, res := range due {
		err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			won, err := tx.TransitionReservation(ctx, res.ID, domain.ReservationPending, domain.ReservationExpired, now)
			if err != nil {
				return err
			}
			if !won {
				// A confirm or cancel got there first; the ledger side was
				// settled by whoever won.
				return nil
			}
			if err := e.applyToRow(ctx, tx, res, domain.LedgerRow.Release); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			e.log.Error("expire reservation failed", "reservation_id", res.ID, "order_id", res.OrderID, "err", err)
		}
	}
	return expired, nil
}

// applyToRow locks the reservation's ledger row, applies the quantity
// mutation and persists the result. An invariant violation here means the
// ledger and the reservation records disagree; it is logged loudly and
// aborts the unit of work.
func (e *Engine) applyToRow(ctx context.Context, tx Tx, res domain.Reservation, op func(domain.LedgerRow, int) (domain.LedgerRow, error)) error {
	row, err := tx.LockRow(ctx, res.ProductID, res.WarehouseID)
	if err != nil {
		return err
	}
	updated, err := op(row, res.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			e.log.Error("ledger consistency bug",
				"reservation_id", res.ID,
				"order_id", res.OrderID,
				"product_id", res.ProductID,
				"warehouse_id", res.WarehouseID,
				"err", err,
			)
		}
		return err
	}
	return tx.SaveRow(ctx, updated)
}

func activeOnly(all []domain.Reservation) []domain.Reservation {
	var active []domain.Reservation
	for _, res := range all {
		if res.State == domain.ReservationPending || res.State == domain.ReservationConfirmed {
			active = append(active, res)
		}
	}
	return active
}
