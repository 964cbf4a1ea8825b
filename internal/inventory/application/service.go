package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/domain"
)

// Service is the synchronous surface: availability queries for catalog and
// order callers, and the stock administration operations. Availability
// reads are display-only and cached; allocation never goes through here.
type Service struct {
	log   *slog.Logger
	store Store
	cache AvailabilityCache
	now   func() time.Time
}

func NewService(log *slog.Logger, store Store, cache AvailabilityCache) *Service {
	return &Service{log: log, store: store, cache: cache, now: time.Now}
}

func (s *Service) ProductInventory(ctx context.Context, productID string) ([]domain.LedgerRow, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", domain.ErrInvalidRequest)
	}
	return s.store.ProductRows(ctx, productID)
}

// AvailableQuantity sums available stock across warehouses. The cached
// value may trail concurrent reservations slightly; that is acceptable for
// display and never used for allocation.
func (s *Service) AvailableQuantity(ctx context.Context, productID string) (int, error) {
	if productID == "" {
		return 0, fmt.Errorf("%w: product id is required", domain.ErrInvalidRequest)
	}
	if s.cache != nil {
		if qty, ok := s.cache.GetAvailable(ctx, productID); ok {
			return qty, nil
		}
	}
	qty, err := s.store.AvailableQuantity(ctx, productID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.SetAvailable(ctx, productID, qty)
	}
	return qty, nil
}

func (s *Service) InStock(ctx context.Context, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("%w: quantity %d", domain.ErrInvalidRequest, qty)
	}
	available, err := s.AvailableQuantity(ctx, productID)
	if err != nil {
		return false, err
	}
	return available >= qty, nil
}

func (s *Service) LowStock(ctx context.Context) ([]domain.LedgerRow, error) {
	return s.store.LowStockRows(ctx)
}

func (s *Service) OrderReservations(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrInvalidRequest)
	}
	return s.store.ReservationsByOrder(ctx, orderID)
}

// AddStock records a stock receipt for a (product, warehouse) pair,
// creating the ledger row on first receipt.
func (s *Service) AddStock(ctx context.Context, productID, warehouseID string, qty int) (domain.LedgerRow, error) {
	if productID == "" || warehouseID == "" {
		return domain.LedgerRow{}, fmt.Errorf("%w: product id and warehouse id are required", domain.ErrInvalidRequest)
	}
	if qty <= 0 {
		return domain.LedgerRow{}, fmt.Errorf("%w: quantity %d", domain.ErrInvalidRequest, qty)
	}
	return s.mutateRow(ctx, productID, warehouseID, true, func(row domain.LedgerRow) (domain.LedgerRow, error) {
		return row.AddStock(qty)
	})
}

// SetStock overwrites the on-hand quantity of an existing ledger row.
func (s *Service) SetStock(ctx context.Context, productID, warehouseID string, qty int) (domain.LedgerRow, error) {
	if productID == "" || warehouseID == "" {
		return domain.LedgerRow{}, fmt.Errorf("%w: product id and warehouse id are required", domain.ErrInvalidRequest)
	}
	return s.mutateRow(ctx, productID, warehouseID, false, func(row domain.LedgerRow) (domain.LedgerRow, error) {
		return row.SetStock(qty)
	})
}

func (s *Service) mutateRow(ctx context.Context, productID, warehouseID string, createMissing bool, op func(domain.LedgerRow) (domain.LedgerRow, error)) (domain.LedgerRow, error) {
	var result domain.LedgerRow
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		row, err := tx.LockRow(ctx, productID, warehouseID)
		created := false
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrRowNotFound) && createMissing:
			row = domain.NewLedgerRow(uuid.NewString(), productID, warehouseID, s.now().UTC())
			created = true
		default:
			return err
		}
		updated, err := op(row)
		if err != nil {
			return err
		}
		result = updated
		if created {
			return tx.InsertRow(ctx, updated)
		}
		return tx.SaveRow(ctx, updated)
	})
	if err != nil {
		return domain.LedgerRow{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, productID)
	}
	s.log.Info("stock updated", "product_id", productID, "warehouse_id", warehouseID, "on_hand", result.OnHand, "status", result.Status)
	return result, nil
}
