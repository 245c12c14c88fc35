package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/harborview/pulse/internal/outbox"
)

// handleListOutbox handles GET /v1/outbox. Operators use it to inspect the
// delivery audit trail, in particular exhausted rows awaiting manual
// intervention (status=failed).
func (s *PulseServer) handleListOutbox(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := outbox.Filter{
		Status: outbox.Status(q.Get("status")),
		Kind:   q.Get("kind"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	switch filter.Status {
	case "", outbox.StatusPending, outbox.StatusSent, outbox.StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+string(filter.Status))
		return
	}

	entries, err := s.store.ListOutbox(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list outbox", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list outbox")
		return
	}
	if entries == nil {
		entries = []*outbox.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleGetOutboxEntry handles GET /v1/outbox/{id}.
func (s *PulseServer) handleGetOutboxEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.store.GetOutboxEntry(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "outbox entry not found")
			return
		}
		s.logger.Error("failed to get outbox entry", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to get outbox entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
