package catalog

import (
	"encoding/json"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(KindRequestStatusChanged, "program-1", "req-42",
		RequestStatusChanged{RequestID: "req-42", From: "draft", To: "submitted"},
		Actor{UserID: "u-1", Name: "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Kind != KindRequestStatusChanged {
		t.Fatalf("expected kind=%q, got %q", KindRequestStatusChanged, env.Kind)
	}
	if env.ScopeID != "program-1" || env.SubjectID != "req-42" {
		t.Fatalf("got scope=%q subject=%q", env.ScopeID, env.SubjectID)
	}
	if !env.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be unstamped")
	}

	var payload RequestStatusChanged
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshaling data: %v", err)
	}
	if payload.From != "draft" || payload.To != "submitted" {
		t.Fatalf("got from=%q to=%q", payload.From, payload.To)
	}
}

func TestNewEnvelope_UnknownKind(t *testing.T) {
	if _, err := NewEnvelope("request.exploded", "program-1", "req-1", nil, System()); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestKnown(t *testing.T) {
	for _, k := range Kinds {
		if !Known(k) {
			t.Errorf("Known(%q) = false, want true", k)
		}
	}
	if Known("no.such.kind") {
		t.Error(`Known("no.such.kind") = true, want false`)
	}
}

func TestActorSystem(t *testing.T) {
	if !System().IsSystem() {
		t.Fatal("System() should be a system actor")
	}
	if (Actor{UserID: "u-1", Name: "Alice"}).IsSystem() {
		t.Fatal("user actor should not be a system actor")
	}
}

func TestEnvelopeJSONShape(t *testing.T) {
	env, err := NewEnvelope(KindCommentAdded, "program-2", "req-7",
		CommentAdded{CommentID: "c-1", RequestID: "req-7", Author: "bob", Body: "looks good"},
		Actor{UserID: "u-2", Name: "Bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshaling envelope: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshaling envelope: %v", err)
	}
	for _, field := range []string{"kind", "scope_id", "subject_id", "data", "actor", "occurred_at"} {
		if _, ok := m[field]; !ok {
			t.Errorf("envelope JSON missing %q field", field)
		}
	}
}
