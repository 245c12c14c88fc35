// Package publish is the single entry point mutation handlers use to emit
// events. It stamps each envelope with a strictly increasing per-scope
// timestamp, then fans it out to the recent log, the stream hub, the
// delivery outbox, and the bus. Publishing is best-effort from the caller's
// point of view: it never blocks a mutation and never surfaces an error to
// it.
package publish

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harborview/pulse/internal/catalog"
	"github.com/harborview/pulse/internal/events"
	"github.com/harborview/pulse/internal/idgen"
	"github.com/harborview/pulse/internal/outbox"
)

// EventLog is the in-memory catch-up buffer.
type EventLog interface {
	Append(env *catalog.Envelope)
}

// Broadcaster delivers envelopes to live stream connections.
type Broadcaster interface {
	Broadcast(env *catalog.Envelope)
}

// Enqueuer persists delivery tasks for the outbox processor.
type Enqueuer interface {
	EnqueueOutbox(ctx context.Context, entry *outbox.Entry) error
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Published     uint64 // envelopes accepted for fan-out
	Dropped       uint64 // envelopes discarded because the queue was full
	StageFailures uint64 // individual fan-out stage failures
}

// DispatcherConfig collects the knobs for a Dispatcher.
type DispatcherConfig struct {
	Workers        int           // fan-out worker count
	QueueSize      int           // pending fan-out capacity per worker
	MaxRetries     int           // per-row delivery attempt cap for enqueued tasks
	StoreTimeout   time.Duration // budget for the outbox insert
	ClockRetention time.Duration // how long idle per-scope clocks are kept
}

// task is one queued fan-out. Injected envelopes skip the durable paths:
// they reach live consumers and the catch-up buffer but are not re-sent to
// the automation consumer that produced them.
type task struct {
	env           *catalog.Envelope
	broadcastOnly bool
}

// Dispatcher owns the fan-out worker pool. All collaborators are injected;
// nothing in this package reaches for global state.
type Dispatcher struct {
	log    EventLog
	hub    Broadcaster
	store  Enqueuer
	bus    events.Publisher
	cfg    DispatcherConfig
	logger *slog.Logger
	now    func() time.Time

	clockMu   sync.Mutex
	clocks    map[string]time.Time // per-scope high-water mark
	lastSweep time.Time

	// Tasks are sharded by scope so each scope is fanned out by exactly
	// one worker. Live consumers then see a scope's events in stamp order
	// while unrelated scopes still fan out concurrently.
	queues []chan task
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	published     atomic.Uint64
	dropped       atomic.Uint64
	stageFailures atomic.Uint64
}

// NewDispatcher wires a dispatcher and starts its workers. Call Stop to
// drain and shut down.
func NewDispatcher(log EventLog, hub Broadcaster, store Enqueuer, bus events.Publisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = outbox.DefaultMaxRetries
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.ClockRetention <= 0 {
		cfg.ClockRetention = 5 * time.Minute
	}
	if bus == nil {
		bus = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		log:    log,
		hub:    hub,
		store:  store,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		clocks: make(map[string]time.Time),
		queues: make([]chan task, cfg.Workers),
	}

	d.wg.Add(cfg.Workers)
	for i := range d.queues {
		d.queues[i] = make(chan task, cfg.QueueSize)
		go d.worker(d.queues[i])
	}
	return d
}

// Publish stamps the envelope and hands it to the fan-out pool. It returns
// immediately; a full queue drops the event rather than stalling the
// mutation that produced it.
func (d *Dispatcher) Publish(env *catalog.Envelope) {
	d.submit(task{env: env})
}

// Inject stamps and distributes an externally synthesized envelope to live
// consumers and the catch-up buffer only. Used by the automation control
// surface; skipping the outbox keeps injected events from echoing back to
// their producer.
func (d *Dispatcher) Inject(env *catalog.Envelope) {
	d.submit(task{env: env, broadcastOnly: true})
}

func (d *Dispatcher) submit(t task) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("publish after shutdown, dropping event",
			"kind", t.env.Kind, "scope_id", t.env.ScopeID, "subject_id", t.env.SubjectID)
		return
	}

	// Stamping and enqueueing share one critical section so queue order
	// matches stamp order within a scope. The send never blocks, so the
	// lock is held only briefly.
	d.clockMu.Lock()
	t.env.OccurredAt = d.stampLocked(t.env.ScopeID)
	var accepted bool
	select {
	case d.queueFor(t.env.ScopeID) <- t:
		accepted = true
	default:
	}
	d.clockMu.Unlock()

	if accepted {
		d.published.Add(1)
		return
	}
	d.dropped.Add(1)
	d.logger.Warn("publish queue full, dropping event",
		"kind", t.env.Kind, "scope_id", t.env.ScopeID, "subject_id", t.env.SubjectID)
}

// queueFor shards a scope onto a worker queue. A scope always maps to the
// same queue, which keeps its events in stamp order through fan-out.
func (d *Dispatcher) queueFor(scopeID string) chan task {
	h := fnv.New32a()
	h.Write([]byte(scopeID))
	return d.queues[int(h.Sum32())%len(d.queues)]
}

// stampLocked returns a timestamp strictly greater than any previously
// handed out for the scope. Same-millisecond collisions are bumped forward
// so the epoch-millis catch-up cursor never equates two distinct events.
// Callers hold clockMu.
func (d *Dispatcher) stampLocked(scopeID string) time.Time {
	now := d.now()
	d.sweepClocks(now)

	t := now.Truncate(time.Millisecond)
	if last, ok := d.clocks[scopeID]; ok && !t.After(last) {
		t = last.Add(time.Millisecond)
	}
	d.clocks[scopeID] = t
	return t
}

// sweepClocks drops per-scope clocks idle longer than the clock retention
// window. Once a scope has been quiet that long the catch-up cursor can no
// longer reach its old events, so the high-water mark has nothing left to
// protect. Runs at most once per window; callers hold clockMu.
func (d *Dispatcher) sweepClocks(now time.Time) {
	if now.Sub(d.lastSweep) < d.cfg.ClockRetention {
		return
	}
	cutoff := now.Add(-d.cfg.ClockRetention)
	for scope, last := range d.clocks {
		if last.Before(cutoff) {
			delete(d.clocks, scope)
		}
	}
	d.lastSweep = now
}

// Stop drains the queues and shuts the workers down. It is idempotent, and
// a Publish racing with shutdown drops its event instead of panicking.
func (d *Dispatcher) Stop() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	d.closeMu.Unlock()

	for _, q := range d.queues {
		close(q)
	}
	d.wg.Wait()
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published:     d.published.Load(),
		Dropped:       d.dropped.Load(),
		StageFailures: d.stageFailures.Load(),
	}
}

func (d *Dispatcher) worker(queue <-chan task) {
	defer d.wg.Done()
	for t := range queue {
		d.fanOut(t)
	}
}

// fanOut distributes one envelope. Each path runs under its own guard; a
// failing path is counted and logged while the others proceed.
func (d *Dispatcher) fanOut(t task) {
	env := t.env

	d.guard("recent_log", env, func() error {
		d.log.Append(env)
		return nil
	})
	d.guard("broadcast", env, func() error {
		d.hub.Broadcast(env)
		return nil
	})

	if t.broadcastOnly {
		return
	}

	d.guard("outbox", env, func() error {
		return d.enqueue(env)
	})
	d.guard("bus", env, func() error {
		return d.bus.Publish(context.Background(), events.SubjectFor(env.Kind), env)
	})
}

// guard runs one fan-out path, containing both errors and panics.
func (d *Dispatcher) guard(path string, env *catalog.Envelope, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.stageFailures.Add(1)
			d.logger.Error("fan-out path panicked",
				"path", path, "kind", env.Kind, "scope_id", env.ScopeID, "panic", r)
		}
	}()

	if err := fn(); err != nil {
		d.stageFailures.Add(1)
		d.logger.Warn("fan-out path failed",
			"path", path, "kind", env.Kind, "scope_id", env.ScopeID,
			"subject_id", env.SubjectID, "err", err)
	}
}

// enqueue persists a delivery task carrying the full envelope.
func (d *Dispatcher) enqueue(env *catalog.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	id, err := idgen.GenerateWithPrefix(idgen.OutboxPrefix)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.StoreTimeout)
	defer cancel()
	return d.store.EnqueueOutbox(ctx, &outbox.Entry{
		ID:         id,
		EventKind:  env.Kind,
		Payload:    payload,
		Status:     outbox.StatusPending,
		MaxRetries: d.cfg.MaxRetries,
		CreatedAt:  d.now(),
	})
}
