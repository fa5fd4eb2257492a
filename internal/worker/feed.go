package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PriceFeeder pushes one round of prices and reports how many writes were
// accepted. Per-symbol failures come back joined.
type PriceFeeder interface {
	FeedPrices(ctx context.Context) (int, error)
}

// FeedWorker runs feed rounds on a fixed interval. Rounds never overlap: a
// tick that fires while the previous round is still pushing is dropped.
type FeedWorker struct {
	feeder   PriceFeeder
	interval time.Duration

	running atomic.Bool
	skipped atomic.Int64
	rounds  sync.WaitGroup
}

// NewFeedWorker creates a new FeedWorker.
func NewFeedWorker(feeder PriceFeeder, interval time.Duration) *FeedWorker {
	return &FeedWorker{
		feeder:   feeder,
		interval: interval,
	}
}

// Skipped returns the number of ticks dropped because a round was in flight.
func (w *FeedWorker) Skipped() int64 { return w.skipped.Load() }

// Run starts a round immediately and then on every tick. It blocks until the
// context is cancelled and the last round has returned.
func (w *FeedWorker) Run(ctx context.Context) {
	slog.Info("FeedWorker: starting", "interval", w.interval)
	defer w.rounds.Wait()

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("FeedWorker: shutting down", "skipped", w.skipped.Load())
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *FeedWorker) tick(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.skipped.Add(1)
		slog.Warn("FeedWorker: previous round still running, tick skipped")
		return
	}

	w.rounds.Add(1)
	go func() {
		defer w.rounds.Done()
		defer w.running.Store(false)
		w.round(ctx)
	}()
}

func (w *FeedWorker) round(ctx context.Context) {
	start := time.Now()
	pushed, err := w.feeder.FeedPrices(ctx)
	failed := countFailures(err)

	attrs := []any{"pushed", pushed, "failed", failed, "duration", time.Since(start)}
	switch {
	case err == nil:
		slog.Info("FeedWorker: round completed", attrs...)
	case pushed == 0:
		slog.Error("FeedWorker: round failed", append(attrs, "error", err)...)
	default:
		slog.Warn("FeedWorker: round partially failed", append(attrs, "error", err)...)
	}
}

// countFailures unpacks an errors.Join result; any other error counts once.
func countFailures(err error) int {
	if err == nil {
		return 0
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return len(joined.Unwrap())
	}
	return 1
}
