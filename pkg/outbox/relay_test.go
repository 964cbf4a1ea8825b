package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeProducer struct {
	messages []kafka.Message
	failFor  map[string]error // keyed by aggregate id
}

func (p *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		if err, ok := p.failFor[string(msg.Key)]; ok {
			return err
		}
		p.messages = append(p.messages, msg)
	}
	return nil
}

type fakeOutboxStore struct {
	pending     []Event
	sent        []int64
	attempts    map[int64]int
	parked      map[int64]string
	maxAttempts int
}

func (s *fakeOutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	if len(s.pending) > batchSize {
		return s.pending[:batchSize], nil
	}
	return s.pending, nil
}

func (s *fakeOutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	s.sent = append(s.sent, ids...)
	remaining := s.pending[:0]
	for _, ev := range s.pending {
		keep := true
		for _, id := range ids {
			if ev.ID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, ev)
		}
	}
	s.pending = remaining
	return nil
}

// MarkFailed keeps the event pending until the retry budget is spent,
// mirroring the Postgres store.
func (s *fakeOutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if s.attempts == nil {
		s.attempts = map[int64]int{}
	}
	s.attempts[id]++
	max := s.maxAttempts
	if max == 0 {
		max = 10
	}
	if s.attempts[id] < max {
		return nil
	}
	if s.parked == nil {
		s.parked = map[int64]string{}
	}
	s.parked[id] = errMsg
	remaining := s.pending[:0]
	for _, ev := range s.pending {
		if ev.ID != id {
			remaining = append(remaining, ev)
		}
	}
	s.pending = remaining
	return nil
}

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchCarriesTypeAndTraceHeaders(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(testLog(), producer)

	err := d.Dispatch(context.Background(), Event{
		ID:          1,
		Topic:       "inventory.reserved",
		AggregateID: "order-1",
		Type:        "InventoryReserved",
		Payload:     []byte(`{"orderId":"order-1"}`),
		Traceparent: "00-abc-def-01",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(producer.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.Topic != "inventory.reserved" || string(msg.Key) != "order-1" {
		t.Errorf("message topic=%s key=%s", msg.Topic, msg.Key)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_type"] != "InventoryReserved" || headers["traceparent"] != "00-abc-def-01" {
		t.Errorf("headers = %v", headers)
	}
}

func TestDispatchOmitsEmptyTraceparent(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(testLog(), producer)

	if err := d.Dispatch(context.Background(), Event{ID: 1, Topic: "t", AggregateID: "a"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	for _, h := range producer.messages[0].Headers {
		if h.Key == "traceparent" {
			t.Errorf("empty traceparent header was sent")
		}
	}
}

func TestRelayDrainSendsAndMarks(t *testing.T) {
	producer := &fakeProducer{}
	store := &fakeOutboxStore{pending: []Event{
		{ID: 1, Topic: "inventory.reserved", AggregateID: "order-1"},
		{ID: 2, Topic: "inventory.released", AggregateID: "order-2"},
	}}
	relay := NewRelay(testLog(), store, NewDispatcher(testLog(), producer), "relay-1")

	relay.drain(context.Background())

	if len(producer.messages) != 2 {
		t.Errorf("got %d messages, want 2", len(producer.messages))
	}
	if len(store.sent) != 2 {
		t.Errorf("marked sent %v, want ids 1 and 2", store.sent)
	}
	if len(store.pending) != 0 {
		t.Errorf("pending left: %v", store.pending)
	}
}

func TestRelayDrainIsolatesFailures(t *testing.T) {
	producer := &fakeProducer{failFor: map[string]error{"order-1": errors.New("broker down")}}
	store := &fakeOutboxStore{pending: []Event{
		{ID: 1, Topic: "inventory.reserved", AggregateID: "order-1"},
		{ID: 2, Topic: "inventory.released", AggregateID: "order-2"},
	}}
	relay := NewRelay(testLog(), store, NewDispatcher(testLog(), producer), "relay-1")

	relay.drain(context.Background())

	// The healthy event still went out; the broken one stays claimable.
	if len(producer.messages) != 1 || string(producer.messages[0].Key) != "order-2" {
		t.Errorf("messages = %v, want only order-2", producer.messages)
	}
	if store.attempts[1] != 1 {
		t.Errorf("attempts = %v, want one recorded failure for id 1", store.attempts)
	}
	if len(store.pending) != 1 || store.pending[0].ID != 1 {
		t.Errorf("pending = %v, want the failed event kept for retry", store.pending)
	}
	if len(store.sent) != 1 || store.sent[0] != 2 {
		t.Errorf("sent = %v, want [2]", store.sent)
	}
}

func TestRelayRedeliversAfterTransientFailure(t *testing.T) {
	producer := &fakeProducer{failFor: map[string]error{"order-1": errors.New("broker down")}}
	store := &fakeOutboxStore{pending: []Event{
		{ID: 1, Topic: "inventory.failed", AggregateID: "order-1"},
	}}
	relay := NewRelay(testLog(), store, NewDispatcher(testLog(), producer), "relay-1")

	relay.drain(context.Background())
	if len(producer.messages) != 0 {
		t.Fatalf("messages = %v, want none while the broker is down", producer.messages)
	}

	// Broker recovers; the next drain picks the event up again.
	producer.failFor = nil
	relay.drain(context.Background())

	if len(producer.messages) != 1 || string(producer.messages[0].Key) != "order-1" {
		t.Errorf("messages = %v, want order-1 delivered after recovery", producer.messages)
	}
	if len(store.sent) != 1 || store.sent[0] != 1 {
		t.Errorf("sent = %v, want [1]", store.sent)
	}
}

func TestRelayParksEventAfterRetryBudget(t *testing.T) {
	producer := &fakeProducer{failFor: map[string]error{"order-1": errors.New("broker down")}}
	store := &fakeOutboxStore{
		pending:     []Event{{ID: 1, Topic: "inventory.failed", AggregateID: "order-1"}},
		maxAttempts: 2,
	}
	relay := NewRelay(testLog(), store, NewDispatcher(testLog(), producer), "relay-1")

	relay.drain(context.Background())
	relay.drain(context.Background())

	if store.parked[1] != "broker down" {
		t.Errorf("parked = %v, want id 1 after the budget is spent", store.parked)
	}

	// Even a recovered broker gets nothing; the event needs an operator.
	producer.failFor = nil
	relay.drain(context.Background())
	if len(producer.messages) != 0 {
		t.Errorf("messages = %v, want none for a parked event", producer.messages)
	}
}
