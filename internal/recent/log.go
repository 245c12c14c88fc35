// Package recent keeps a time-bounded, per-scope buffer of recently published
// events, used only to answer "what did I miss since timestamp T" when a
// client reconnects. It is not durable history; entries expire after the
// retention window.
package recent

import (
	"sort"
	"sync"
	"time"

	"github.com/harborview/pulse/internal/catalog"
)

// DefaultRetention bounds how far back catch-up can reach.
const DefaultRetention = 5 * time.Minute

type entry struct {
	occurredAt time.Time
	envelope   *catalog.Envelope
}

// Log is a per-scope append-only buffer ordered by OccurredAt. Trimming
// happens opportunistically on append so an idle scope stays bounded without
// a separate job.
type Log struct {
	mu        sync.Mutex
	retention time.Duration
	scopes    map[string][]entry
	now       func() time.Time
}

// NewLog returns a log that retains entries for the given window.
// A non-positive retention falls back to DefaultRetention.
func NewLog(retention time.Duration) *Log {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{
		retention: retention,
		scopes:    make(map[string][]entry),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Append inserts the envelope into its scope's buffer, keeping the buffer
// ordered by OccurredAt, and trims entries older than the retention window.
// Append cannot fail; the log is auxiliary to the live and outbox paths.
func (l *Log) Append(env *catalog.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.scopes[env.ScopeID]
	e := entry{occurredAt: env.OccurredAt, envelope: env}

	// Publishes are stamped monotonically per scope, so the common case is a
	// plain append; out-of-order inserts (injected events) fall back to a
	// binary search.
	if n := len(buf); n == 0 || !buf[n-1].occurredAt.After(e.occurredAt) {
		buf = append(buf, e)
	} else {
		i := sort.Search(len(buf), func(i int) bool {
			return buf[i].occurredAt.After(e.occurredAt)
		})
		buf = append(buf, entry{})
		copy(buf[i+1:], buf[i:])
		buf[i] = e
	}

	// Trim expired entries from the head.
	cutoff := l.now().Add(-l.retention)
	i := 0
	for i < len(buf) && buf[i].occurredAt.Before(cutoff) {
		i++
	}
	buf = buf[i:]

	if len(buf) == 0 {
		delete(l.scopes, env.ScopeID)
	} else {
		l.scopes[env.ScopeID] = buf
	}
}

// Query returns events in the scope with OccurredAt strictly greater than
// sinceExclusive, oldest first, capped at limit. The strictly-greater bound
// prevents re-delivering the boundary event the client already has. Entries
// older than the retention window are never returned, even if a trim has not
// run since they expired.
func (l *Log) Query(scopeID string, sinceExclusive time.Time, limit int) []*catalog.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.scopes[scopeID]
	if len(buf) == 0 || limit <= 0 {
		return nil
	}

	cutoff := l.now().Add(-l.retention)
	if sinceExclusive.Before(cutoff) {
		// Retention bounds the replay window regardless of how old the
		// client's cursor is. Back the bound up to just before the cutoff so
		// events at exactly the cutoff instant are still returned.
		sinceExclusive = cutoff.Add(-time.Nanosecond)
	}

	start := sort.Search(len(buf), func(i int) bool {
		return buf[i].occurredAt.After(sinceExclusive)
	})

	var result []*catalog.Envelope
	for _, e := range buf[start:] {
		if len(result) == limit {
			break
		}
		result = append(result, e.envelope)
	}
	return result
}

// Len reports the number of buffered entries for a scope.
func (l *Log) Len(scopeID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.scopes[scopeID])
}
