package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harborview/pulse/internal/catalog"
	"github.com/harborview/pulse/internal/recent"
)

// keepaliveInterval is how often keepalive comments are sent to prevent
// proxy and load-balancer idle timeouts.
const keepaliveInterval = 15 * time.Second

// StreamerConfig collects the knobs for the SSE stream handler.
type StreamerConfig struct {
	ConnectTimeout time.Duration // budget for auth + scope resolution
	ReplayLimit    int           // max catch-up events per scope
}

// Streamer is the HTTP handler for the event stream endpoint. It
// authenticates the request, binds the connection to the user's scopes,
// replays missed events from the recent log, then streams live.
type Streamer struct {
	hub    *Hub
	log    *recent.Log
	auth   *Authenticator
	scopes ScopeResolver
	cfg    StreamerConfig
	logger *slog.Logger
}

func NewStreamer(hub *Hub, log *recent.Log, auth *Authenticator, scopes ScopeResolver, cfg StreamerConfig, logger *slog.Logger) *Streamer {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		hub:    hub,
		log:    log,
		auth:   auth,
		scopes: scopes,
		cfg:    cfg,
		logger: logger,
	}
}

// ServeHTTP handles GET /v1/events/stream.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	identity, err := s.auth.Authenticate(bearerToken(r))
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	// Scope membership is computed once, at connect time. Membership
	// changes after this point require a reconnect to take effect.
	connectCtx, cancel := context.WithTimeout(r.Context(), s.cfg.ConnectTimeout)
	scopes, err := s.scopes.ScopesForUser(connectCtx, identity.UserID)
	cancel()
	if err != nil {
		s.logger.Error("failed to resolve scopes for stream", "user_id", identity.UserID, "err", err)
		http.Error(w, "scope resolution failed", http.StatusServiceUnavailable)
		return
	}

	since, hasSince := parseSince(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Register before replaying so an event published mid-replay lands in
	// the connection buffer instead of falling between the two phases.
	conn := s.hub.Register(identity.UserID, scopes)
	defer s.hub.Unregister(conn)

	// Replay missed events before going live so the consumer sees catch-up
	// and live phases in order. Anything buffered during replay that the
	// replay already covered is suppressed by the per-scope floor below.
	floors := make(map[string]time.Time, len(scopes))
	if hasSince {
		for _, scope := range scopes {
			floors[scope] = since
			for _, env := range s.log.Query(scope, since, s.cfg.ReplayLimit) {
				if err := writeFrame(w, env); err != nil {
					return
				}
				floors[scope] = env.OccurredAt
			}
		}
		flusher.Flush()
	}

	s.logger.Info("stream connected",
		"conn_id", conn.ID, "user_id", identity.UserID, "scopes", len(scopes))

	ctx := r.Context()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-conn.Events():
			if !ok {
				return
			}
			if !env.OccurredAt.After(floors[env.ScopeID]) {
				continue
			}
			if err := writeFrame(w, env); err != nil {
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprintf(w, ":keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// bearerToken extracts the stream token from the Authorization header or,
// for EventSource clients that cannot set headers, the access_token query
// parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// parseSince reads the catch-up cursor: the since query parameter (epoch
// milliseconds or RFC3339) or the standard Last-Event-ID header set by
// reconnecting EventSource clients.
func parseSince(r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return time.Time{}, false
	}

	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// writeFrame writes a single SSE frame. The id field carries the event's
// occurredAt as epoch milliseconds so it can round-trip through
// Last-Event-ID as the next catch-up cursor.
func writeFrame(w http.ResponseWriter, env *catalog.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id:%d\n", env.OccurredAt.UnixMilli()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event:%s\n", env.Kind); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data:%s\n\n", data)
	return err
}
