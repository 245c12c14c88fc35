package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/harborview/pulse/internal/outbox"
	"github.com/harborview/pulse/internal/store"
)

// exportBatchSize is how many rows are fetched per store round-trip.
const exportBatchSize = 500

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Since      time.Time `json:"since"`
	EntryCount int       `json:"entry_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string        `json:"type"`
	Data *outbox.Entry `json:"data"`
}

// ExportJSONL writes the terminal outbox rows created since the given time
// as JSONL to w: delivered rows plus exhausted failures, oldest first.
func ExportJSONL(ctx context.Context, s store.Store, since time.Time, w io.Writer) error {
	var entries []*outbox.Entry
	seen := make(map[string]struct{})
	cursor := since
	for {
		batch, err := s.ListTerminalOutbox(ctx, cursor, exportBatchSize)
		if err != nil {
			return fmt.Errorf("list terminal outbox: %w", err)
		}
		// Batches overlap at the cursor row; skip rows already collected.
		for _, e := range batch {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			entries = append(entries, e)
		}
		if len(batch) < exportBatchSize {
			break
		}
		cursor = batch[len(batch)-1].CreatedAt
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		Since:      since,
		EntryCount: len(entries),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range entries {
		if err := enc.Encode(record{Type: "outbox_entry", Data: e}); err != nil {
			return fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
	}

	return nil
}
