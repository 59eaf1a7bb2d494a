// Package telemetry implements the gateway's Telemetry Logger (spec.md §4.6):
// a bounded in-process queue that batches events and flushes them to an
// injectable sink either when the batch fills or on a fixed interval,
// whichever comes first.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/multiai-gateway/internal/logger"
)

// EventType identifies the kind of telemetry event (spec.md §4.6).
type EventType string

const (
	EventStreamingSuccess EventType = "streaming_success"
	EventStreamingError   EventType = "streaming_error"
	// EventSpendingWarning is emitted by the ledger once per window when a
	// counter crosses its warn_at_percent threshold (spec.md §4.9).
	EventSpendingWarning EventType = "spending_warning"
)

// Event is a single telemetry record. Envelope fields (Timestamp,
// AppVersion, Platform) are stamped by the Logger at enqueue time so
// callers never have to thread them through.
type Event struct {
	Type       EventType      `json:"type"`
	Model      string         `json:"model"`
	Source     string         `json:"source"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
	AppVersion string         `json:"app_version"`
	Platform   string         `json:"platform"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Sink receives flushed batches. Tests inject a recording sink instead of
// a real network call.
type Sink interface {
	Send(ctx context.Context, events []Event) error
}

// Config holds the batching tunables (spec.md §6).
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueCapacity int
	AppVersion    string
	Platform      string
}

// DefaultConfig returns spec.md's defaults: batch_size=10, flush=5s,
// queue_capacity=500.
func DefaultConfig() Config {
	return Config{BatchSize: 10, FlushInterval: 5 * time.Second, QueueCapacity: 500}
}

// Logger batches telemetry events and flushes them on a ticker, mirroring
// the teacher's worker-with-ticker shape.
type Logger struct {
	cfg  Config
	sink Sink
	log  *logger.Logger

	mu      sync.Mutex
	pending []Event
	dropped int

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Logger and starts its background flush worker. Call
// Close to flush remaining events and stop the worker.
func New(cfg Config, sink Sink, log *logger.Logger) *Logger {
	l := &Logger{
		cfg:      cfg,
		sink:     sink,
		log:      log,
		shutdown: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Enqueue records an event, stamping the envelope fields. If the queue is
// at capacity the event is dropped and counted rather than blocking the
// caller — telemetry must never slow down a streaming response.
func (l *Logger) Enqueue(evt Event) {
	evt.Timestamp = time.Now().UTC()
	evt.AppVersion = l.cfg.AppVersion
	evt.Platform = l.cfg.Platform

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) >= l.cfg.QueueCapacity {
		l.dropped++
		return
	}
	l.pending = append(l.pending, evt)

	if len(l.pending) >= l.cfg.BatchSize {
		batch := l.drainLocked()
		go l.flush(batch)
	}
}

// Dropped returns the count of events dropped because the queue was full.
func (l *Logger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *Logger) drainLocked() []Event {
	batch := l.pending
	l.pending = nil
	return batch
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			batch := l.drainLocked()
			l.mu.Unlock()
			if len(batch) > 0 {
				l.flush(batch)
			}
		case <-l.shutdown:
			l.mu.Lock()
			batch := l.drainLocked()
			l.mu.Unlock()
			if len(batch) > 0 {
				l.flush(batch)
			}
			return
		}
	}
}

func (l *Logger) flush(batch []Event) {
	if l.sink == nil || len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.sink.Send(ctx, batch); err != nil && l.log != nil {
		l.log.Error("telemetry flush failed", slog.Int("batch_size", len(batch)), slog.String("error", err.Error()))
	}
}

// Close stops the flush worker after draining any remaining events.
func (l *Logger) Close() {
	close(l.shutdown)
	l.wg.Wait()
}
