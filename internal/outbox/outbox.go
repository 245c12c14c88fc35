// Package outbox implements durable at-least-once delivery of published
// events to the external automation consumer. Rows are created by the
// publish facade, mutated only by the Processor, and never deleted; they
// form the delivery audit trail.
package outbox

import (
	"encoding/json"
	"time"
)

// SecretHeader carries the shared secret the automation consumer uses to
// verify that deliveries (and control-surface calls) come from this service.
const SecretHeader = "X-Pulse-Delivery-Secret"

// Status of a delivery task.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// DefaultMaxRetries bounds automatic delivery attempts per row.
const DefaultMaxRetries = 5

// Entry is a durable delivery task.
type Entry struct {
	ID          string          `json:"id"`
	EventKind   string          `json:"event_kind"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	LastError   string          `json:"last_error,omitempty"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Terminal reports whether the entry will never be attempted again: either
// it was delivered, or its retries are exhausted and it awaits manual
// intervention.
func (e *Entry) Terminal() bool {
	switch e.Status {
	case StatusSent:
		return true
	case StatusFailed:
		return e.RetryCount >= e.MaxRetries
	default:
		return false
	}
}

// Filter narrows ListOutbox results for operator inspection.
type Filter struct {
	Status Status
	Kind   string
	Limit  int
}
