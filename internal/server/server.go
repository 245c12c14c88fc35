// Package server exposes the distribution subsystem over HTTP: the event
// stream for interactive clients, the outbox inspection surface for
// operators, and the control surface the automation consumer calls back
// into.
package server

import (
	"log/slog"

	"github.com/harborview/pulse/internal/publish"
	"github.com/harborview/pulse/internal/realtime"
	"github.com/harborview/pulse/internal/store"
)

// PulseServer holds the wired subsystem collaborators behind the HTTP
// surface.
type PulseServer struct {
	store      store.Store
	dispatcher *publish.Dispatcher
	streamer   *realtime.Streamer
	logger     *slog.Logger
}

// NewPulseServer returns a server over the given collaborators.
func NewPulseServer(s store.Store, d *publish.Dispatcher, streamer *realtime.Streamer, logger *slog.Logger) *PulseServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PulseServer{
		store:      s,
		dispatcher: d,
		streamer:   streamer,
		logger:     logger,
	}
}
