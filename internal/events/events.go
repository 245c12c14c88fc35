// Package events mirrors published envelopes onto a NATS bus and consumes
// inbound automation subjects. The bus is optional; when PULSE_NATS_URL is
// unset the server runs with a no-op publisher.
package events

import (
	"context"
)

// Subject prefixes.
const (
	// subjectPrefix is prepended to an event kind to form its outbound
	// subject, e.g. "pulse.request.status_changed".
	subjectPrefix = "pulse."

	// AutomationSubject is the wildcard subject the automation consumer
	// publishes synthesized envelopes on.
	AutomationSubject = "automation.>"
)

// SubjectFor returns the bus subject for an event kind.
func SubjectFor(kind string) string {
	return subjectPrefix + kind
}

// Publisher is the interface for mirroring events onto the bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}
