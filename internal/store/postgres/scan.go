package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/harborview/pulse/internal/outbox"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanOutboxEntry scans a single row into an outbox.Entry.
// The row must contain columns in the order defined by outboxColumns.
func scanOutboxEntry(row scannable) (*outbox.Entry, error) {
	var e outbox.Entry
	var (
		payload     []byte
		lastError   sql.NullString
		nextRetryAt sql.NullTime
		sentAt      sql.NullTime
	)

	err := row.Scan(
		&e.ID,
		&e.EventKind,
		&payload,
		&e.Status,
		&e.RetryCount,
		&e.MaxRetries,
		&lastError,
		&nextRetryAt,
		&sentAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Payload = json.RawMessage(payload)
	e.LastError = lastError.String
	e.NextRetryAt = timePtr(nextRetryAt)
	e.SentAt = timePtr(sentAt)
	return &e, nil
}

func scanOutboxEntries(rows *sql.Rows) ([]*outbox.Entry, error) {
	var entries []*outbox.Entry
	for rows.Next() {
		e, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// nullString converts an empty string to a NULL-able SQL value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTimePtr converts a *time.Time to a NULL-able SQL value.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr converts a NULL-able SQL time back to a *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
