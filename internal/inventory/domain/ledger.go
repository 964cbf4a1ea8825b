package domain

import (
	"fmt"
	"time"
)

type StockStatus string

const (
	StockInStock      StockStatus = "IN_STOCK"
	StockLowStock     StockStatus = "LOW_STOCK"
	StockOutOfStock   StockStatus = "OUT_OF_STOCK"
	StockDiscontinued StockStatus = "DISCONTINUED"
)

// LedgerRow is the stock record for one product in one warehouse.
// (product_id, warehouse_id) is unique; all mutations happen through the
// value methods below so the reserved <= on-hand invariant is enforced in
// one place. Methods return the updated row instead of mutating in place.
type LedgerRow struct {
	ID           string
	ProductID    string
	WarehouseID  string
	OnHand       int
	Reserved     int
	ReorderLevel int
	MaxStock     int
	Status       StockStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewLedgerRow(id, productID, warehouseID string, now time.Time) LedgerRow {
	row := LedgerRow{
		ID:           id,
		ProductID:    productID,
		WarehouseID:  warehouseID,
		ReorderLevel: DefaultReorderLevel,
		MaxStock:     DefaultMaxStock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return row.withStatus()
}

const (
	DefaultReorderLevel = 10
	DefaultMaxStock     = 1000
)

// Available is the quantity that can still be promised to new orders.
func (r LedgerRow) Available() int { return r.OnHand - r.Reserved }

// Reserve increments the reserved quantity. The caller must hold the row
// lock and must not ask for more than Available.
func (r LedgerRow) Reserve(qty int) (LedgerRow, error) {
	if qty <= 0 {
		return r, fmt.Errorf("%w: reserve quantity %d", ErrInvalidRequest, qty)
	}
	if qty > r.Available() {
		return r, fmt.Errorf("%w: product %s warehouse %s: requested %d, available %d",
			ErrInsufficientStock, r.ProductID, r.WarehouseID, qty, r.Available())
	}
	r.Reserved += qty
	return r.withStatus(), nil
}

// Release returns previously reserved quantity to the available pool.
// Releasing more than is reserved means the reservation bookkeeping and
// the ledger disagree, which the saga must never allow.
func (r LedgerRow) Release(qty int) (LedgerRow, error) {
	if qty <= 0 {
		return r, fmt.Errorf("%w: release quantity %d", ErrInvalidRequest, qty)
	}
	if qty > r.Reserved {
		return r, fmt.Errorf("%w: release %d exceeds reserved %d for product %s warehouse %s",
			ErrInvariantViolation, qty, r.Reserved, r.ProductID, r.WarehouseID)
	}
	r.Reserved -= qty
	return r.withStatus(), nil
}

// Finalize permanently deducts reserved stock: the goods leave the warehouse.
func (r LedgerRow) Finalize(qty int) (LedgerRow, error) {
	if qty <= 0 {
		return r, fmt.Errorf("%w: finalize quantity %d", ErrInvalidRequest, qty)
	}
	if qty > r.Reserved {
		return r, fmt.Errorf("%w: finalize %d exceeds reserved %d for product %s warehouse %s",
			ErrInvariantViolation, qty, r.Reserved, r.ProductID, r.WarehouseID)
	}
	r.Reserved -= qty
	r.OnHand -= qty
	return r.withStatus(), nil
}

// AddStock records a stock receipt.
func (r LedgerRow) AddStock(qty int) (LedgerRow, error) {
	if qty <= 0 {
		return r, fmt.Errorf("%w: add quantity %d", ErrInvalidRequest, qty)
	}
	r.OnHand += qty
	return r.withStatus(), nil
}

// SetStock overwrites the on-hand quantity, e.g. after a physical count.
// The new quantity may not undercut outstanding reservations.
func (r LedgerRow) SetStock(qty int) (LedgerRow, error) {
	if qty < 0 {
		return r, fmt.Errorf("%w: set quantity %d", ErrInvalidRequest, qty)
	}
	if qty < r.Reserved {
		return r, fmt.Errorf("%w: set quantity %d below reserved %d", ErrInvalidRequest, qty, r.Reserved)
	}
	r.OnHand = qty
	return r.withStatus(), nil
}

func (r LedgerRow) withStatus() LedgerRow {
	if r.Status == StockDiscontinued {
		return r
	}
	switch available := r.Available(); {
	case available <= 0:
		r.Status = StockOutOfStock
	case available <= r.ReorderLevel:
		r.Status = StockLowStock
	default:
		r.Status = StockInStock
	}
	return r
}
