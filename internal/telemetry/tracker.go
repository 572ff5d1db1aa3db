// Package telemetry buffers fire-and-forget usage events in memory and
// persists them in batches. Producers call Track and move on; persistence is
// best-effort and at-most-once, so an event accepted but not yet flushed is
// lost if the process dies. That trade is deliberate: telemetry must never
// slow down or fail a request.
package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"cdr.dev/slog"
	"github.com/coder/quartz"

	"github.com/kitchen48/telemetry-service/internal/device"
)

const (
	defaultFlushInterval  = 5 * time.Second
	defaultFlushThreshold = 100
	defaultQueueCapacity  = 1000

	// flushTimeout bounds the store call so a hung database cannot wedge
	// the run loop (or shutdown) forever.
	flushTimeout = 10 * time.Second

	// closeTimeout bounds the shutdown drain. Past it, Close logs and
	// returns; remaining events are lost under the best-effort contract.
	closeTimeout = 15 * time.Second

	// maxFlushAttempts caps how many consecutive times a failing batch is
	// requeued before it is discarded. Without a cap, one poison batch
	// blocks every event behind it indefinitely.
	maxFlushAttempts = 8
)

// EventStore persists detached batches. The implementation must be
// all-or-nothing and idempotent per event id, so a batch requeued after an
// ambiguous failure cannot be double-counted.
type EventStore interface {
	InsertEventBatch(ctx context.Context, events []Event) error
}

// TrackInput is what producers hand to Track. Everything except EventType is
// optional.
type TrackInput struct {
	EventType  string
	ClientApp  string
	UserID     string
	SessionID  string
	EntityType string
	EntityID   string
	Metadata   map[string]any

	// UserAgent, when present, is classified and recorded in the event
	// metadata under "device_type".
	UserAgent string
}

// FlushResult describes one flush attempt. Exactly one of the counts is
// nonzero. Empty-buffer ticks do not produce a result.
type FlushResult struct {
	Persisted int
	Requeued  int
	Discarded int
	Err       error
}

// Options configures a Tracker. Store and Logger are required.
type Options struct {
	Store   EventStore
	Logger  slog.Logger
	Clock   quartz.Clock
	Metrics *Metrics

	FlushInterval  time.Duration
	FlushThreshold int
	QueueCapacity  int

	// FlushResults receives one value per non-empty flush attempt. Sends
	// block, so this should only be set in tests.
	FlushResults chan<- FlushResult
}

// Tracker is the telemetry entry point. A single run-loop goroutine owns the
// buffer; enqueue, ticker, threshold and shutdown all reach it as channel
// messages, so two flushes can never race and detaching the buffer is a plain
// reassignment.
type Tracker struct {
	store   EventStore
	log     slog.Logger
	clock   quartz.Clock
	metrics *Metrics

	flushInterval  time.Duration
	flushThreshold int
	flushResults   chan<- FlushResult

	ctx    context.Context
	events chan Event

	mu       sync.Mutex
	draining bool

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// New starts the run loop and returns the tracker. Callers must Close it to
// drain the buffer before process exit.
func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = defaultFlushThreshold
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}

	t := &Tracker{
		store:          opts.Store,
		log:            opts.Logger.Named("telemetry"),
		clock:          opts.Clock,
		metrics:        opts.Metrics,
		flushInterval:  opts.FlushInterval,
		flushThreshold: opts.FlushThreshold,
		flushResults:   opts.FlushResults,
		ctx:            context.Background(),
		events:         make(chan Event, opts.QueueCapacity),
		closed:         make(chan struct{}),
		done:           make(chan struct{}),
	}
	go t.run()
	return t
}

// Track composes and enqueues one event. It never blocks, never returns an
// error, and performs no I/O; a full queue or a draining tracker drops the
// event with a warning, which is the only observable effect.
func (t *Tracker) Track(in TrackInput) {
	if t.isDraining() {
		t.log.Warn(t.ctx, "event dropped, tracker is draining",
			slog.F("event_type", in.EventType))
		t.metrics.EventsDropped.WithLabelValues(DropReasonDraining).Inc()
		return
	}

	e := Event{
		ID:         uuid.New().String(),
		EventType:  in.EventType,
		ClientApp:  in.ClientApp,
		UserID:     in.UserID,
		SessionID:  in.SessionID,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Metadata:   t.encodeMetadata(in),
		CreatedAt:  t.clock.Now().UTC(),
	}

	select {
	case t.events <- e:
	default:
		t.log.Warn(t.ctx, "event dropped, queue is full",
			slog.F("event_type", in.EventType),
			slog.F("capacity", cap(t.events)))
		t.metrics.EventsDropped.WithLabelValues(DropReasonOverflow).Inc()
	}
}

// Close stops the ticker, rejects further Track calls and performs one final
// flush. Safe to call more than once; every call waits for the same single
// drain, at most closeTimeout.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.draining = true
		t.mu.Unlock()
		close(t.closed)
	})

	select {
	case <-t.done:
	case <-time.After(closeTimeout):
		t.log.Error(t.ctx, "shutdown drain timed out, remaining events lost",
			slog.F("timeout", closeTimeout))
	}
}

func (t *Tracker) isDraining() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draining
}

// encodeMetadata folds the classified device type into the caller's metadata
// and marshals it up front. A value that cannot be serialized degrades the
// whole bag to null here rather than failing the batch at flush time.
func (t *Tracker) encodeMetadata(in TrackInput) json.RawMessage {
	md := in.Metadata
	if in.UserAgent != "" {
		merged := make(map[string]any, len(md)+1)
		for k, v := range md {
			merged[k] = v
		}
		merged["device_type"] = string(device.Classify(in.UserAgent))
		md = merged
	}
	if md == nil {
		return nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		t.log.Warn(t.ctx, "event metadata not serializable, stored as null",
			slog.F("event_type", in.EventType), slog.Error(err))
		return nil
	}
	return raw
}

// run is the single goroutine that owns the buffer.
func (t *Tracker) run() {
	defer close(t.done)

	ticker := t.clock.NewTicker(t.flushInterval)
	defer ticker.Stop()

	var (
		buf      []Event
		failures int
	)
	for {
		select {
		case e := <-t.events:
			buf = append(buf, e)
			if len(buf) >= t.flushThreshold {
				buf, failures = t.flush(buf, failures, false)
			}
		case <-ticker.C:
			buf, failures = t.flush(buf, failures, false)
		case <-t.closed:
			ticker.Stop()
			// Producers that won the race against the draining flag
			// may still have events sitting in the channel.
			for {
				select {
				case e := <-t.events:
					buf = append(buf, e)
					continue
				default:
				}
				break
			}
			t.flush(buf, failures, true)
			return
		}
	}
}

// flush takes ownership of the detached batch and attempts to persist it.
// On failure the batch stays live (it becomes the front of the buffer, so
// failed-then-old events precede anything enqueued afterward) until it either
// succeeds or exhausts maxFlushAttempts. The final shutdown flush has no
// later cycle to retry in, so its failure is reported as loss, not a requeue.
func (t *Tracker) flush(batch []Event, failures int, final bool) ([]Event, int) {
	if len(batch) == 0 {
		return nil, failures
	}

	ctx, cancel := context.WithTimeout(t.ctx, flushTimeout)
	err := t.store.InsertEventBatch(ctx, batch)
	cancel()

	if err == nil {
		t.metrics.EventsPersisted.Add(float64(len(batch)))
		t.report(FlushResult{Persisted: len(batch)})
		return nil, 0
	}

	failures++
	t.metrics.FlushFailures.Inc()
	if final {
		t.log.Error(t.ctx, "final flush failed, events lost at shutdown",
			slog.F("events", len(batch)),
			slog.Error(err))
		t.metrics.BatchesDiscarded.Inc()
		t.report(FlushResult{Discarded: len(batch), Err: err})
		return nil, 0
	}
	if failures >= maxFlushAttempts {
		t.log.Error(t.ctx, "discarding batch after repeated flush failures",
			slog.F("events", len(batch)),
			slog.F("attempts", failures),
			slog.Error(err))
		t.metrics.BatchesDiscarded.Inc()
		t.report(FlushResult{Discarded: len(batch), Err: err})
		return nil, 0
	}

	t.log.Warn(t.ctx, "flush failed, batch requeued",
		slog.F("events", len(batch)),
		slog.F("attempt", failures),
		slog.Error(err))
	t.report(FlushResult{Requeued: len(batch), Err: err})
	return batch, failures
}

func (t *Tracker) report(r FlushResult) {
	if t.flushResults != nil {
		t.flushResults <- r
	}
}
