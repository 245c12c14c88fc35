package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestSubjectFor(t *testing.T) {
	if got := SubjectFor("request.status_changed"); got != "pulse.request.status_changed" {
		t.Fatalf("SubjectFor = %q, want %q", got, "pulse.request.status_changed")
	}
}

func TestNATSPublisher_PublishesJSON(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("pulse.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	type payload struct {
		ScopeID string `json:"scope_id"`
	}
	if err := pub.Publish(context.Background(), SubjectFor("request.created"), payload{ScopeID: "program-1"}); err != nil {
		t.Fatalf("publishing: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got payload
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshaling: %v", err)
		}
		if got.ScopeID != "program-1" {
			t.Errorf("got scope %q, want %q", got.ScopeID, "program-1")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = &NoopPublisher{}
	if err := p.Publish(context.Background(), "pulse.anything", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
