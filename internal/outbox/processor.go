package outbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Store is the slice of persistence the processor needs. Implemented by the
// postgres store.
type Store interface {
	// ListDueOutbox returns rows eligible for an attempt: pending rows, plus
	// failed rows whose nextRetryAt has passed and whose retries are not
	// exhausted.
	ListDueOutbox(ctx context.Context, now time.Time, limit int) ([]*Entry, error)
	MarkOutboxSent(ctx context.Context, id string, sentAt time.Time) error
	MarkOutboxFailed(ctx context.Context, id string, retryCount int, lastError string, nextRetryAt time.Time) error
}

// ProcessorConfig collects the knobs for a delivery Processor.
type ProcessorConfig struct {
	BaseURL     string            // consumer endpoint prefix; kind is appended as the path
	Secret      string            // value for SecretHeader
	Routes      map[string]string // optional per-kind path overrides
	Interval    time.Duration     // how often due rows are scanned
	Timeout     time.Duration     // per-attempt HTTP timeout
	BackoffUnit time.Duration     // linear backoff step: retryCount * BackoffUnit
	BatchSize   int               // max rows per scan
}

// Processor dispatches due outbox rows to the automation consumer on a fixed
// interval. It assumes a single active instance per deployment; nothing
// prevents two processors from double-sending the same row.
type Processor struct {
	store  Store
	client *http.Client
	cfg    ProcessorConfig
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessor creates a delivery processor. Zero-value config fields get
// conservative defaults.
func NewProcessor(store Store, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:  store,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the interval loop. It scans once immediately, then on each tick.
func (p *Processor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Stop cancels the loop and waits for the in-flight scan (if any) to finish.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Processor) run(ctx context.Context) {
	p.ProcessOnce(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce scans due rows and attempts each independently; one row's
// failure never aborts the batch.
func (p *Processor) ProcessOnce(ctx context.Context) {
	entries, err := p.store.ListDueOutbox(ctx, p.now(), p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("outbox scan failed", "err", err)
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		p.dispatch(ctx, e)
	}
}

// dispatch POSTs one entry's payload to the consumer and records the outcome.
func (p *Processor) dispatch(ctx context.Context, e *Entry) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := p.post(attemptCtx, e)
	now := p.now()

	if err == nil {
		if err := p.store.MarkOutboxSent(ctx, e.ID, now); err != nil {
			p.logger.Error("failed to mark outbox row sent", "id", e.ID, "kind", e.EventKind, "err", err)
		}
		return
	}

	retryCount := e.RetryCount + 1
	nextRetryAt := now.Add(time.Duration(retryCount) * p.cfg.BackoffUnit)
	if err := p.store.MarkOutboxFailed(ctx, e.ID, retryCount, err.Error(), nextRetryAt); err != nil {
		p.logger.Error("failed to mark outbox row failed", "id", e.ID, "kind", e.EventKind, "err", err)
		return
	}

	if retryCount >= e.MaxRetries {
		p.logger.Error("outbox delivery exhausted; row requires manual intervention",
			"id", e.ID, "kind", e.EventKind, "retry_count", retryCount, "err", err)
	} else {
		p.logger.Warn("outbox delivery failed; will retry",
			"id", e.ID, "kind", e.EventKind, "retry_count", retryCount,
			"next_retry_at", nextRetryAt, "err", err)
	}
}

func (p *Processor) post(ctx context.Context, e *Entry) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointFor(e.EventKind), bytes.NewReader(e.Payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, p.cfg.Secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering %s: %w", e.EventKind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivering %s: consumer returned %s", e.EventKind, resp.Status)
	}
	return nil
}

// endpointFor derives the delivery URL for a kind, honoring route overrides.
func (p *Processor) endpointFor(kind string) string {
	base := strings.TrimSuffix(p.cfg.BaseURL, "/")
	if path, ok := p.cfg.Routes[kind]; ok {
		return base + path
	}
	return base + "/" + kind
}
