package realtime

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/harborview/pulse/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testEnvelope(t *testing.T, kind, scopeID string, occurredAt time.Time) *catalog.Envelope {
	t.Helper()
	env, err := catalog.NewEnvelope(kind, scopeID, "req-1", catalog.RequestCreated{
		RequestID: "req-1",
		Title:     "laptop",
		Status:    "draft",
	}, catalog.Actor{UserID: "u-1", Name: "Dana"})
	if err != nil {
		t.Fatalf("NewEnvelope() error: %v", err)
	}
	env.OccurredAt = occurredAt
	return env
}

func TestHub_BroadcastReachesScopeMembers(t *testing.T) {
	hub := NewHub(testLogger())
	a := hub.Register("u-1", []string{"ws-alpha"})
	b := hub.Register("u-2", []string{"ws-alpha", "ws-beta"})
	defer hub.Unregister(a)
	defer hub.Unregister(b)

	env := testEnvelope(t, catalog.KindRequestCreated, "ws-alpha", time.Now())
	hub.Broadcast(env)

	for _, c := range []*Conn{a, b} {
		select {
		case got := <-c.Events():
			if got.Kind != catalog.KindRequestCreated {
				t.Errorf("conn %s: unexpected kind %q", c.ID, got.Kind)
			}
		default:
			t.Errorf("conn %s: expected delivery", c.ID)
		}
	}
}

func TestHub_ScopeIsolation(t *testing.T) {
	hub := NewHub(testLogger())
	alpha := hub.Register("u-1", []string{"ws-alpha"})
	beta := hub.Register("u-2", []string{"ws-beta"})
	defer hub.Unregister(alpha)
	defer hub.Unregister(beta)

	hub.Broadcast(testEnvelope(t, catalog.KindRequestCreated, "ws-alpha", time.Now()))

	if len(alpha.Events()) != 1 {
		t.Error("expected delivery to ws-alpha member")
	}
	if len(beta.Events()) != 0 {
		t.Error("expected no delivery to ws-beta member")
	}
}

func TestHub_SlowConsumerDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(testLogger())
	slow := hub.Register("u-1", []string{"ws-alpha"})
	fast := hub.Register("u-2", []string{"ws-alpha"})
	defer hub.Unregister(slow)
	defer hub.Unregister(fast)

	// Saturate the slow consumer's buffer, then push more. The extra events
	// must be dropped for the slow connection while the fast one drains.
	total := connBufferSize + 10
	for i := range total {
		env := testEnvelope(t, catalog.KindRequestUpdated, "ws-alpha", time.Now())
		hub.Broadcast(env)
		if got := <-fast.Events(); got == nil {
			t.Fatalf("fast conn: missing event %d", i)
		}
	}

	if slow.Dropped() != uint64(total-connBufferSize) {
		t.Errorf("expected %d drops, got %d", total-connBufferSize, slow.Dropped())
	}
	if len(slow.Events()) != connBufferSize {
		t.Errorf("expected full buffer, got %d", len(slow.Events()))
	}
}

func TestHub_FailingConnDoesNotAffectSiblings(t *testing.T) {
	hub := NewHub(testLogger())
	a := hub.Register("u-a", []string{"ws-alpha"})
	b := hub.Register("u-b", []string{"ws-alpha"})
	c := hub.Register("u-c", []string{"ws-alpha"})
	defer hub.Unregister(a)
	defer hub.Unregister(c)

	// Simulate a dead consumer: b's buffer is already full, so every write
	// to it fails while a and c keep receiving.
	for range connBufferSize {
		b.ch <- testEnvelope(t, catalog.KindRequestUpdated, "ws-alpha", time.Now())
	}

	env := testEnvelope(t, catalog.KindRequestStatusChanged, "ws-alpha", time.Now())
	hub.Broadcast(env)

	for _, conn := range []*Conn{a, c} {
		select {
		case got := <-conn.Events():
			if got.Kind != catalog.KindRequestStatusChanged {
				t.Errorf("conn %s: unexpected kind %q", conn.ID, got.Kind)
			}
		default:
			t.Errorf("conn %s: expected delivery despite sibling failure", conn.ID)
		}
	}
	if b.Dropped() != 1 {
		t.Errorf("expected failing conn to record 1 drop, got %d", b.Dropped())
	}
	hub.Unregister(b)
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub(testLogger())
	c := hub.Register("u-1", []string{"ws-alpha"})

	hub.Unregister(c)
	hub.Unregister(c) // idempotent

	if _, ok := <-c.Events(); ok {
		t.Error("expected closed channel after unregister")
	}
	if hub.ConnCount("ws-alpha") != 0 {
		t.Error("expected empty room after unregister")
	}

	// Broadcasting to an empty room must not panic.
	hub.Broadcast(testEnvelope(t, catalog.KindRequestCreated, "ws-alpha", time.Now()))
}

func TestHub_ConnIDsUseConnectionPrefix(t *testing.T) {
	hub := NewHub(testLogger())
	c := hub.Register("u-1", []string{"ws-alpha"})
	defer hub.Unregister(c)

	if !strings.HasPrefix(c.ID, "cn-") {
		t.Errorf("expected cn- prefix, got %q", c.ID)
	}
}

func TestHub_MultiScopeConnReceivesFromEachRoom(t *testing.T) {
	hub := NewHub(testLogger())
	c := hub.Register("u-1", []string{"ws-alpha", "ws-beta"})
	defer hub.Unregister(c)

	hub.Broadcast(testEnvelope(t, catalog.KindRequestCreated, "ws-alpha", time.Now()))
	hub.Broadcast(testEnvelope(t, catalog.KindCommentAdded, "ws-beta", time.Now()))

	if len(c.Events()) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(c.Events()))
	}
}

func TestConn_EnvelopeSurvivesFanOutUnchanged(t *testing.T) {
	hub := NewHub(testLogger())
	c := hub.Register("u-1", []string{"ws-alpha"})
	defer hub.Unregister(c)

	env := testEnvelope(t, catalog.KindRequestCreated, "ws-alpha", time.Now())
	hub.Broadcast(env)

	got := <-c.Events()
	var payload catalog.RequestCreated
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.RequestID != "req-1" || payload.Title != "laptop" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}
