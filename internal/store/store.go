package store

import (
	"context"
	"time"

	"github.com/harborview/pulse/internal/outbox"
)

// Store defines the persistence interface for pulse.
type Store interface {
	// Outbox delivery tasks. Rows are inserted by the publish facade,
	// transitioned by the delivery processor, and never deleted.
	EnqueueOutbox(ctx context.Context, entry *outbox.Entry) error
	GetOutboxEntry(ctx context.Context, id string) (*outbox.Entry, error)
	ListOutbox(ctx context.Context, filter outbox.Filter) ([]*outbox.Entry, error)
	ListDueOutbox(ctx context.Context, now time.Time, limit int) ([]*outbox.Entry, error)
	MarkOutboxSent(ctx context.Context, id string, sentAt time.Time) error
	MarkOutboxFailed(ctx context.Context, id string, retryCount int, lastError string, nextRetryAt time.Time) error

	// ListTerminalOutbox returns delivered or exhausted rows created since
	// the given time, for the audit archiver.
	ListTerminalOutbox(ctx context.Context, since time.Time, limit int) ([]*outbox.Entry, error)

	// ScopesForUser returns the workspace IDs the user is a member of.
	// The memberships table is written by the surrounding platform; this
	// subsystem only reads it.
	ScopesForUser(ctx context.Context, userID string) ([]string, error)

	// Lifecycle
	Close() error
}
