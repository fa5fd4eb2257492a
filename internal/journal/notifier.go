// Package journal records registry events for external observers.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtlprog/oracle/internal/domain"
	"github.com/mtlprog/oracle/internal/registry"
)

const appendTimeout = 5 * time.Second

type record struct {
	registry string
	name     string
	payload  json.RawMessage
	flushed  chan struct{} // set on flush markers only
}

// Writer appends events to a Repository from a single background goroutine.
// Registries notify while holding their lock, so enqueueing never waits on
// storage: when the queue is full the event is logged and dropped. Entries
// are appended in the order they were enqueued.
type Writer struct {
	repo    Repository
	queue   chan record
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts a writer with room for buffer pending events.
func NewWriter(repo Repository, buffer int) *Writer {
	w := &Writer{
		repo:  repo,
		queue: make(chan record, buffer),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for r := range w.queue {
		if r.flushed != nil {
			close(r.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := w.repo.Append(ctx, r.registry, r.name, r.payload); err != nil {
			slog.Error("journal: failed to append event", "registry", r.registry, "event", r.name, "error", err)
		}
		cancel()
	}
}

func (w *Writer) enqueue(r record) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.queue <- r:
	default:
		w.dropped.Add(1)
		slog.Warn("journal: queue full, event dropped", "registry", r.registry, "event", r.name)
	}
}

// Dropped returns how many events were discarded because the queue was full
// or the writer was closed.
func (w *Writer) Dropped() int64 { return w.dropped.Load() }

// Flush blocks until every event enqueued before the call has been appended.
func (w *Writer) Flush(ctx context.Context) error {
	marker := make(chan struct{})

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		<-w.done
		return nil
	}
	select {
	case w.queue <- record{flushed: marker}:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

// Notifier labels the events of one registry and hands them to a Writer.
type Notifier struct {
	registry string
	writer   *Writer
}

var _ registry.Notifier = (*Notifier)(nil)

// Notifier returns a registry.Notifier whose entries carry registryName.
func (w *Writer) Notifier(registryName string) *Notifier {
	return &Notifier{registry: registryName, writer: w}
}

func (n *Notifier) Notify(_ context.Context, events ...domain.Event) {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			slog.Error("journal: failed to encode event", "event", e.EventName(), "error", err)
			continue
		}
		n.writer.enqueue(record{registry: n.registry, name: e.EventName(), payload: payload})
	}
}

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	Registry string
}

func (l LogNotifier) Notify(_ context.Context, events ...domain.Event) {
	for _, e := range events {
		slog.Info("registry event", "registry", l.Registry, "event", e.EventName(), "payload", e)
	}
}

// Multi fans events out to every notifier in order.
type Multi []registry.Notifier

func (m Multi) Notify(ctx context.Context, events ...domain.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, events...)
		}
	}
}
