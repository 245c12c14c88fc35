package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/harborview/pulse/internal/outbox"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// The stream endpoint authenticates its own bearer tokens; the outbox and
// automation surfaces require the shared delivery secret; health is open.
func (s *PulseServer) NewHTTPHandler(deliverySecret string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /v1/events/stream", s.streamer)
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/outbox", s.handleListOutbox)
	protected.HandleFunc("GET /v1/outbox/{id}", s.handleGetOutboxEntry)
	protected.HandleFunc("POST /v1/automation/events", s.handleAutomationEvent)
	protected.HandleFunc("POST /v1/automation/jobs/{id}/complete", s.handleJobComplete)
	mux.Handle("/v1/outbox", SecretMiddleware(deliverySecret, protected))
	mux.Handle("/v1/outbox/", SecretMiddleware(deliverySecret, protected))
	mux.Handle("/v1/automation/", SecretMiddleware(deliverySecret, protected))

	return mux
}

// SecretMiddleware requires the shared delivery secret on every request.
// The automation consumer authenticates callbacks with the same header the
// processor uses for deliveries.
func SecretMiddleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(outbox.SecretHeader)
		if provided == "" {
			writeError(w, http.StatusUnauthorized, "missing "+outbox.SecretHeader+" header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth handles GET /v1/health.
func (s *PulseServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trimNonEmpty returns the trimmed value and whether anything remains.
func trimNonEmpty(v string) (string, bool) {
	v = strings.TrimSpace(v)
	return v, v != ""
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
