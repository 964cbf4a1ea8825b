package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationState string

const (
	ReservationPending   ReservationState = "PENDING"
	ReservationConfirmed ReservationState = "CONFIRMED"
	ReservationCancelled ReservationState = "CANCELLED"
	ReservationExpired   ReservationState = "EXPIRED"
)

// DefaultReservationTTL is how long a pending reservation holds stock
// before the sweeper reclaims it.
const DefaultReservationTTL = 30 * time.Minute

var validNext = map[ReservationState]map[ReservationState]bool{
	ReservationPending: {
		ReservationConfirmed: true,
		ReservationCancelled: true,
		ReservationExpired:   true,
	},
	ReservationConfirmed: {},
	ReservationCancelled: {},
	ReservationExpired:   {},
}

// CanTransition reports whether a reservation may move from one state to
// another. Every state except PENDING is terminal.
func CanTransition(from, to ReservationState) bool {
	return validNext[from][to]
}

// Reservation is a time-bounded hold of stock against one ledger row on
// behalf of one order.
type Reservation struct {
	ID          string
	OrderID     string
	ProductID   string
	WarehouseID string
	Quantity    int
	State       ReservationState
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
}

func NewReservation(orderID, productID, warehouseID string, qty int, now time.Time, ttl time.Duration) Reservation {
	return Reservation{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty,
		State:       ReservationPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func (r Reservation) ExpiredBy(now time.Time) bool {
	return r.State == ReservationPending && now.After(r.ExpiresAt)
}
