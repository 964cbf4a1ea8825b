package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is one staged outbound message. It is written in the same
// database transaction as the state change it announces and later carried
// to its Topic by the relay.
type Event struct {
	ID          int64
	Topic       string
	AggregateID string
	Type        string
	Payload     []byte
	Traceparent string
	CreatedAt   time.Time
	Status      Status
	RetryCount  int
	LastError   *string
}
