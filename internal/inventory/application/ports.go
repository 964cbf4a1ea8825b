package application

import (
	"context"
	"time"

	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/domain"
)

// Tx is one unit of work over the ledger. Implementations back it with a
// database transaction: row reads take exclusive locks, and either every
// mutation commits or none does. The lock scope never spans outbound I/O;
// outcome events go through the outbox and are published after commit.
type Tx interface {
	// LockAvailableRows returns the ledger rows for a product that still
	// have available quantity, exclusively locked, in deterministic order
	// (largest available first, then warehouse id).
	LockAvailableRows(ctx context.Context, productID string) ([]domain.LedgerRow, error)

	// LockRow locks a single (product, warehouse) row. ErrRowNotFound if
	// the pair has never received stock.
	LockRow(ctx context.Context, productID, warehouseID string) (domain.LedgerRow, error)

	// HasProduct reports whether any ledger row exists for the product,
	// regardless of availability.
	HasProduct(ctx context.Context, productID string) (bool, error)

	SaveRow(ctx context.Context, row domain.LedgerRow) error
	InsertRow(ctx context.Context, row domain.LedgerRow) error

	InsertReservation(ctx context.Context, res domain.Reservation) error
	ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)
	PendingByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)

	// MarkOrderCancelled records a tombstone for the order so a late
	// order.created (topics are unordered) cannot allocate for it.
	MarkOrderCancelled(ctx context.Context, orderID string) error
	OrderCancelled(ctx context.Context, orderID string) (bool, error)

	// TransitionReservation conditionally moves a reservation from one
	// state to another and reports whether this caller won the transition.
	// Racing transitions (confirm vs expire) are serialized here.
	TransitionReservation(ctx context.Context, id string, from, to domain.ReservationState, at time.Time) (bool, error)

	// AppendEvent stages an outbound event in the outbox, committed
	// atomically with the rest of the unit of work.
	AppendEvent(ctx context.Context, topic, eventType, key string, payload []byte) error
}

// Store provides transactional units of work plus the unlocked reads used
// for display and sweeping. Unlocked reads are eventually consistent and
// never feed allocation decisions.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ProductRows(ctx context.Context, productID string) ([]domain.LedgerRow, error)
	AvailableQuantity(ctx context.Context, productID string) (int, error)
	LowStockRows(ctx context.Context) ([]domain.LedgerRow, error)
	ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error)
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

// AvailabilityCache is a best-effort cache for display-only availability
// reads. Misses and errors fall through to the store.
type AvailabilityCache interface {
	GetAvailable(ctx context.Context, productID string) (int, bool)
	SetAvailable(ctx context.Context, productID string, qty int)
	Invalidate(ctx context.Context, productID string)
}
