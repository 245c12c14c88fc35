package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/harborview/pulse/internal/catalog"
	"github.com/harborview/pulse/internal/events"
	"github.com/harborview/pulse/internal/publish"
)

// automationMessage is the bus shape the automation consumer publishes on
// automation.> subjects. It mirrors the HTTP control surface body.
type automationMessage struct {
	ScopeID   string         `json:"scope_id"`
	SubjectID string         `json:"subject_id"`
	Name      string         `json:"name"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// RunAutomationBridge consumes synthesized events from the bus and injects
// them into the live distribution paths. It blocks until ctx is canceled or
// the subscription channel closes.
func RunAutomationBridge(ctx context.Context, sub events.Subscriber, d *publish.Dispatcher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ch, cancel, err := sub.Subscribe(events.AutomationSubject)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			injectAutomationMessage(payload, d, logger)
		}
	}
}

func injectAutomationMessage(payload []byte, d *publish.Dispatcher, logger *slog.Logger) {
	var msg automationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.Warn("discarding malformed automation message", "err", err)
		return
	}
	if msg.ScopeID == "" || msg.Name == "" {
		logger.Warn("discarding automation message without scope_id or name")
		return
	}

	env, err := catalog.NewEnvelope(catalog.KindAutomationEvent, msg.ScopeID, msg.SubjectID, catalog.AutomationEvent{
		Name:   msg.Name,
		Fields: msg.Fields,
	}, catalog.System())
	if err != nil {
		logger.Warn("discarding automation message", "err", err)
		return
	}
	d.Inject(env)
}
