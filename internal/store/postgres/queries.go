package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harborview/pulse/internal/outbox"
)

// outboxColumns is the column list used for SELECT statements on the
// outbox_entries table.
const outboxColumns = `id, event_kind, payload, status, retry_count,
	max_retries, last_error, next_retry_at, sent_at, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryEnqueueOutbox(ctx context.Context, db executor, e *outbox.Entry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO outbox_entries (
			id, event_kind, payload, status, retry_count,
			max_retries, last_error, next_retry_at, sent_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)`,
		e.ID,
		e.EventKind,
		[]byte(e.Payload),
		string(e.Status),
		e.RetryCount,
		e.MaxRetries,
		nullString(e.LastError),
		nullTimePtr(e.NextRetryAt),
		nullTimePtr(e.SentAt),
		e.CreatedAt,
	)
	return err
}

func queryGetOutboxEntry(ctx context.Context, db executor, id string) (*outbox.Entry, error) {
	row := db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox_entries WHERE id = $1`, id)
	return scanOutboxEntry(row)
}

func queryListOutbox(ctx context.Context, db executor, filter outbox.Filter) ([]*outbox.Entry, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Status != "" {
		whereClauses = append(whereClauses, "status = "+nextArg())
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		whereClauses = append(whereClauses, "event_kind = "+nextArg())
		args = append(args, filter.Kind)
	}

	query := `SELECT ` + outboxColumns + ` FROM outbox_entries`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + nextArg()
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

// queryListDueOutbox returns rows eligible for a delivery attempt, oldest
// first: pending rows, plus failed rows whose backoff has elapsed and whose
// retries are not exhausted.
func queryListDueOutbox(ctx context.Context, db executor, now time.Time, limit int) ([]*outbox.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM outbox_entries
		WHERE status = 'pending'
		   OR (status = 'failed' AND retry_count < max_retries AND next_retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

func queryMarkOutboxSent(ctx context.Context, db executor, id string, sentAt time.Time) error {
	result, err := db.ExecContext(ctx, `
		UPDATE outbox_entries
		SET status = 'sent', sent_at = $2, last_error = NULL
		WHERE id = $1`,
		id, sentAt,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func queryMarkOutboxFailed(ctx context.Context, db executor, id string, retryCount int, lastError string, nextRetryAt time.Time) error {
	result, err := db.ExecContext(ctx, `
		UPDATE outbox_entries
		SET status = 'failed', retry_count = $2, last_error = $3, next_retry_at = $4
		WHERE id = $1`,
		id, retryCount, lastError, nextRetryAt,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

// queryListTerminalOutbox returns delivered rows plus exhausted failures
// created since the given time, oldest first, for the audit archiver.
func queryListTerminalOutbox(ctx context.Context, db executor, since time.Time, limit int) ([]*outbox.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+outboxColumns+` FROM outbox_entries
		WHERE created_at >= $1
		  AND (status = 'sent' OR (status = 'failed' AND retry_count >= max_retries))
		ORDER BY created_at ASC
		LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

func queryScopesForUser(ctx context.Context, db executor, userID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT workspace_id FROM memberships WHERE user_id = $1 ORDER BY workspace_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		scopes = append(scopes, id)
	}
	return scopes, rows.Err()
}

// requireRowAffected converts an UPDATE that matched nothing into
// sql.ErrNoRows.
func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
