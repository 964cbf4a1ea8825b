package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ShubhamPawar-3333/NexusCart/internal/inventory/domain"
)

// Coordinator bridges the order and payment lifecycle topics to the
// reservation engine and emits the inventory outcome events through the
// outbox. Delivery is at least once and unordered across topics, so every
// handler must survive duplicates and out-of-order arrivals: allocation is
// order-scoped idempotent in the engine, release and confirm only ever act
// on pending reservations.
//
// A handler returning an error signals the consumer to redeliver; a nil
// return acknowledges the message, including business failures that were
// answered with an inventory.failed event.
type Coordinator struct {
	log    *slog.Logger
	engine *Engine
	store  Store
	now    func() time.Time
}

func NewCoordinator(log *slog.Logger, engine *Engine, store Store) *Coordinator {
	return &Coordinator{log: log, engine: engine, store: store, now: time.Now}
}

func (c *Coordinator) HandleOrderCreated(ctx context.Context, value []byte) error {
	var ev domain.OrderCreated
	if err := json.Unmarshal(value, &ev); err != nil {
		c.log.Error("order.created unmarshal failed", "err", err)
		return nil
	}
	if ev.OrderID == "" || len(ev.Items) == 0 {
		c.log.Error("order.created missing order id or items", "event_id", ev.EventID)
		return nil
	}

	reservations, err := c.engine.Allocate(ctx, ev.OrderID, ev.Items)
	switch {
	case err == nil:
		if len(reservations) == 0 {
			// Replay of an order whose reservations were since released or
			// expired. Re-emitting a reserved event now would contradict
			// the later outcome.
			c.log.Info("order already settled, nothing to reserve", "order_id", ev.OrderID)
			return nil
		}
		c.log.Info("stock reserved", "order_id", ev.OrderID, "reservations", len(reservations))
		return c.emitReserved(ctx, ev.OrderID, reservations)
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrInvalidRequest):
		// Business failure: the attempt was rolled back before we get
		// here, so the failure event describes a clean ledger.
		c.log.Info("reservation failed", "order_id", ev.OrderID, "reason", err.Error())
		return c.emitFailed(ctx, ev.OrderID, err.Error())
	default:
		return err
	}
}

func (c *Coordinator) HandleOrderCancelled(ctx context.Context, value []byte) error {
	var ev domain.OrderCancelled
	if err := json.Unmarshal(value, &ev); err != nil {
		c.log.Error("order.cancelled unmarshal failed", "err", err)
		return nil
	}
	if ev.OrderID == "" {
		c.log.Error("order.cancelled missing order id", "event_id", ev.EventID)
		return nil
	}

	released, err := c.engine.ReleaseForOrder(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	c.log.Info("stock released", "order_id", ev.OrderID, "reservations", released, "reason", ev.Reason)
	return c.emitReleased(ctx, ev.OrderID)
}

func (c *Coordinator) HandlePaymentCompleted(ctx context.Context, value []byte) error {
	var ev domain.PaymentCompleted
	if err := json.Unmarshal(value, &ev); err != nil {
		c.log.Error("payment.completed unmarshal failed", "err", err)
		return nil
	}
	if ev.OrderID == "" {
		// Confirmation is keyed strictly by order id; a payment event
		// without one cannot be correlated and is dropped.
		c.log.Error("payment.completed missing order id", "event_id", ev.EventID, "payment_id", ev.PaymentID)
		return nil
	}

	confirmed, err := c.engine.ConfirmForOrder(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	c.log.Info("reservations confirmed", "order_id", ev.OrderID, "reservations", confirmed)
	return nil
}

func (c *Coordinator) emitReserved(ctx context.Context, orderID string, reservations []domain.Reservation) error {
	items := make([]domain.ReservedItem, 0, len(reservations))
	for _, res := range reservations {
		items = append(items, domain.ReservedItem{
			ProductID:   res.ProductID,
			Quantity:    res.Quantity,
			WarehouseID: res.WarehouseID,
		})
	}
	return c.emit(ctx, domain.TopicInventoryReserved, domain.EventInventoryReserved, orderID, domain.InventoryReserved{
		EventID:    uuid.NewString(),
		OrderID:    orderID,
		Items:      items,
		ReservedAt: c.now().UTC(),
	})
}

func (c *Coordinator) emitFailed(ctx context.Context, orderID, reason string) error {
	return c.emit(ctx, domain.TopicInventoryFailed, domain.EventInventoryFailed, orderID, domain.InventoryFailed{
		EventID:  uuid.NewString(),
		OrderID:  orderID,
		Reason:   reason,
		FailedAt: c.now().UTC(),
	})
}

func (c *Coordinator) emitReleased(ctx context.Context, orderID string) error {
	return c.emit(ctx, domain.TopicInventoryReleased, domain.EventInventoryReleased, orderID, domain.InventoryReleased{
		EventID:    uuid.NewString(),
		OrderID:    orderID,
		ReleasedAt: c.now().UTC(),
	})
}

func (c *Coordinator) emit(ctx context.Context, topic, eventType, orderID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AppendEvent(ctx, topic, eventType, orderID, body)
	})
}
