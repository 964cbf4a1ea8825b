package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/domain"
)

// memStore is a copy-on-write in-memory Store. A unit of work runs against
// a deep copy of the state and the copy is swapped in only on success, so
// it rolls back the same way a database transaction does. The store mutex
// is held for the whole unit of work, which stands in for row locks.
type memStore struct {
	mu    sync.Mutex
	state memState

	// failTransition makes TransitionReservation fail for specific
	// reservation ids, to exercise partial-failure paths.
	failTransition map[string]error
}

type memState struct {
	rows         map[string]domain.LedgerRow
	reservations map[string]domain.Reservation
	cancelled    map[string]bool
	events       []stagedEvent
}

type stagedEvent struct {
	Topic   string
	Type    string
	Key     string
	Payload []byte
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			rows:         map[string]domain.LedgerRow{},
			reservations: map[string]domain.Reservation{},
			cancelled:    map[string]bool{},
		},
	}
}

func (s *memStore) addRow(productID, warehouseID string, onHand int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := domain.NewLedgerRow(uuid.NewString(), productID, warehouseID, time.Now().UTC())
	row, _ = row.AddStock(onHand)
	s.state.rows[row.ID] = row
	return row.ID
}

func (s *memStore) row(productID, warehouseID string) (domain.LedgerRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.state.rows {
		if r.ProductID == productID && r.WarehouseID == warehouseID {
			return r, true
		}
	}
	return domain.LedgerRow{}, false
}

func (s *memStore) totalReserved(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, r := range s.state.rows {
		if r.ProductID == productID {
			total += r.Reserved
		}
	}
	return total
}

func (s *memStore) reservationStates(orderID string) map[domain.ReservationState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[domain.ReservationState]int{}
	for _, res := range s.state.reservations {
		if res.OrderID == orderID {
			out[res.State]++
		}
	}
	return out
}

func (s *memStore) stagedEvents() []stagedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stagedEvent(nil), s.state.events...)
}

func (st memState) clone() memState {
	rows := make(map[string]domain.LedgerRow, len(st.rows))
	for k, v := range st.rows {
		rows[k] = v
	}
	reservations := make(map[string]domain.Reservation, len(st.reservations))
	for k, v := range st.reservations {
		reservations[k] = v
	}
	cancelled := make(map[string]bool, len(st.cancelled))
	for k, v := range st.cancelled {
		cancelled[k] = v
	}
	return memState{
		rows:         rows,
		reservations: reservations,
		cancelled:    cancelled,
		events:       append([]stagedEvent(nil), st.events...),
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, &memTx{state: &work, store: s}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memStore) ProductRows(ctx context.Context, productID string) ([]domain.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerRow
	for _, r := range s.state.rows {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WarehouseID < out[j].WarehouseID })
	return out, nil
}

func (s *memStore) AvailableQuantity(ctx context.Context, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, r := range s.state.rows {
		if r.ProductID == productID && r.Status != domain.StockDiscontinued {
			total += r.Available()
		}
	}
	return total, nil
}

func (s *memStore) LowStockRows(ctx context.Context) ([]domain.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerRow
	for _, r := range s.state.rows {
		if r.Status != domain.StockDiscontinued && r.Available() <= r.ReorderLevel {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reservationsOf(s.state, orderID, ""), nil
}

func (s *memStore) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reservation
	for _, res := range s.state.reservations {
		if res.State == domain.ReservationPending && res.ExpiresAt.Before(now) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	state *memState
	store *memStore
}

func (t *memTx) LockAvailableRows(ctx context.Context, productID string) ([]domain.LedgerRow, error) {
	var out []domain.LedgerRow
	for _, r := range t.state.rows {
		if r.ProductID == productID && r.Available() > 0 && r.Status != domain.StockDiscontinued {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Available() != out[j].Available() {
			return out[i].Available() > out[j].Available()
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out, nil
}

func (t *memTx) LockRow(ctx context.Context, productID, warehouseID string) (domain.LedgerRow, error) {
	for _, r := range t.state.rows {
		if r.ProductID == productID && r.WarehouseID == warehouseID {
			return r, nil
		}
	}
	return domain.LedgerRow{}, domain.ErrRowNotFound
}

func (t *memTx) HasProduct(ctx context.Context, productID string) (bool, error) {
	for _, r := range t.state.rows {
		if r.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SaveRow(ctx context.Context, row domain.LedgerRow) error {
	if _, ok := t.state.rows[row.ID]; !ok {
		return fmt.Errorf("save of unknown row %s", row.ID)
	}
	t.state.rows[row.ID] = row
	return nil
}

func (t *memTx) InsertRow(ctx context.Context, row domain.LedgerRow) error {
	if _, ok := t.state.rows[row.ID]; ok {
		return fmt.Errorf("duplicate row %s", row.ID)
	}
	t.state.rows[row.ID] = row
	return nil
}

func (t *memTx) InsertReservation(ctx context.Context, res domain.Reservation) error {
	if _, ok := t.state.reservations[res.ID]; ok {
		return fmt.Errorf("duplicate reservation %s", res.ID)
	}
	t.state.reservations[res.ID] = res
	return nil
}

func (t *memTx) ReservationsByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return reservationsOf(*t.state, orderID, ""), nil
}

func (t *memTx) PendingByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	return reservationsOf(*t.state, orderID, domain.ReservationPending), nil
}

func (t *memTx) MarkOrderCancelled(ctx context.Context, orderID string) error {
	t.state.cancelled[orderID] = true
	return nil
}

func (t *memTx) OrderCancelled(ctx context.Context, orderID string) (bool, error) {
	return t.state.cancelled[orderID], nil
}

func (t *memTx) TransitionReservation(ctx context.Context, id string, from, to domain.ReservationState, at time.Time) (bool, error) {
	if t.store != nil {
		if err, ok := t.store.failTransition[id]; ok {
			return false, err
		}
	}
	res, ok := t.state.reservations[id]
	if !ok || res.State != from || !domain.CanTransition(from, to) {
		return false, nil
	}
	res.State = to
	stamp := at
	switch to {
	case domain.ReservationConfirmed:
		res.ConfirmedAt = &stamp
	case domain.ReservationCancelled:
		res.CancelledAt = &stamp
	}
	t.state.reservations[id] = res
	return true, nil
}

func (t *memTx) AppendEvent(ctx context.Context, topic, eventType, key string, payload []byte) error {
	t.state.events = append(t.state.events, stagedEvent{Topic: topic, Type: eventType, Key: key, Payload: payload})
	return nil
}

func reservationsOf(st memState, orderID string, state domain.ReservationState) []domain.Reservation {
	var out []domain.Reservation
	for _, res := range st.reservations {
		if res.OrderID != orderID {
			continue
		}
		if state != "" && res.State != state {
			continue
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
