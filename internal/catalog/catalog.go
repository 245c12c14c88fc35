// Package catalog defines the closed set of mutation event kinds and the
// envelope shape shared by every event the distribution subsystem carries.
// The envelope is uniform across kinds; only the inner Data payload varies,
// and Data is opaque to everything between producer and consumer.
package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds.
const (
	KindRequestCreated       = "request.created"
	KindRequestUpdated       = "request.updated"
	KindRequestStatusChanged = "request.status_changed"
	KindRequestAssigned      = "request.assigned"
	KindRequestDeleted       = "request.deleted"

	KindCommentAdded   = "comment.added"
	KindCommentDeleted = "comment.deleted"

	KindAttachmentUploaded = "attachment.uploaded"
	KindAttachmentDeleted  = "attachment.deleted"

	KindChainStepAdvanced   = "chain.step_advanced"
	KindNotificationCreated = "notification.created"

	// Kinds synthesized by the automation consumer through the control
	// surface rather than by mutation handlers.
	KindJobCompleted    = "job.completed"
	KindAutomationEvent = "automation.event"
)

// Kinds is every registered event kind.
var Kinds = []string{
	KindRequestCreated,
	KindRequestUpdated,
	KindRequestStatusChanged,
	KindRequestAssigned,
	KindRequestDeleted,
	KindCommentAdded,
	KindCommentDeleted,
	KindAttachmentUploaded,
	KindAttachmentDeleted,
	KindChainStepAdvanced,
	KindNotificationCreated,
	KindJobCompleted,
	KindAutomationEvent,
}

var kindSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Kinds))
	for _, k := range Kinds {
		m[k] = struct{}{}
	}
	return m
}()

// Known reports whether kind is part of the catalog.
func Known(kind string) bool {
	_, ok := kindSet[kind]
	return ok
}

// Actor identifies who caused a mutation.
type Actor struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// systemUserID is the sentinel user id for events not caused by a person.
const systemUserID = "system"

// System returns the sentinel actor for machine-initiated events.
func System() Actor {
	return Actor{UserID: systemUserID, Name: "System"}
}

// IsSystem reports whether the actor is the system sentinel.
func (a Actor) IsSystem() bool { return a.UserID == systemUserID }

// Envelope is the immutable fact every distribution path carries. It is
// created once at publish time and never mutated afterwards.
type Envelope struct {
	Kind       string          `json:"kind"`
	ScopeID    string          `json:"scope_id"`
	SubjectID  string          `json:"subject_id"`
	Data       json.RawMessage `json:"data"`
	Actor      Actor           `json:"actor"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEnvelope builds an envelope for the given kind, marshaling the typed
// payload once. OccurredAt is left zero; the publish facade stamps it.
func NewEnvelope(kind, scopeID, subjectID string, payload any, actor Actor) (*Envelope, error) {
	if !Known(kind) {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", kind, err)
	}
	return &Envelope{
		Kind:      kind,
		ScopeID:   scopeID,
		SubjectID: subjectID,
		Data:      data,
		Actor:     actor,
	}, nil
}

// Typed payloads, one per kind. Producers construct these; consumers decode
// Data back into them keyed on Kind.

type RequestCreated struct {
	RequestID string `json:"request_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Template  string `json:"template,omitempty"`
}

type RequestUpdated struct {
	RequestID string         `json:"request_id"`
	Changes   map[string]any `json:"changes"` // field name -> new value
}

type RequestStatusChanged struct {
	RequestID string `json:"request_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type RequestAssigned struct {
	RequestID string `json:"request_id"`
	Assignee  string `json:"assignee"`
}

type RequestDeleted struct {
	RequestID string `json:"request_id"`
}

type CommentAdded struct {
	CommentID string `json:"comment_id"`
	RequestID string `json:"request_id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
}

type CommentDeleted struct {
	CommentID string `json:"comment_id"`
	RequestID string `json:"request_id"`
}

type AttachmentUploaded struct {
	AttachmentID string `json:"attachment_id"`
	RequestID    string `json:"request_id"`
	Filename     string `json:"filename"`
	SizeBytes    int64  `json:"size_bytes"`
}

type AttachmentDeleted struct {
	AttachmentID string `json:"attachment_id"`
	RequestID    string `json:"request_id"`
}

type ChainStepAdvanced struct {
	RequestID  string `json:"request_id"`
	ChainID    string `json:"chain_id"`
	Step       int    `json:"step"`
	TotalSteps int    `json:"total_steps"`
}

type NotificationCreated struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
}

type JobCompleted struct {
	JobID  string `json:"job_id"`
	Result string `json:"result,omitempty"`
}

type AutomationEvent struct {
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}
