// Package worker runs the background loops of the ledger: the recurring
// expansion ticker and the inbound sync consumer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"moneymind/internal/amqp"
	"moneymind/internal/core"
)

// Ledger is the part of the ledger service the worker drives.
type Ledger interface {
	Owner() string
	ExpandDue(ctx context.Context) (int, error)
	Sync(ctx context.Context, snap core.Snapshot) error
}

// SyncConsumer delivers inbound ledger snapshots. ConsumeLedgerSync blocks
// until ctx ends or the delivery channel breaks.
type SyncConsumer interface {
	ConsumeLedgerSync(ctx context.Context, handler func(context.Context, *amqp.LedgerSyncMessage) error) error
}

type Config struct {
	// Interval between recurring expansion passes.
	Interval time.Duration
	// ConsumerRetry is the pause before resubscribing after the consumer fails.
	ConsumerRetry time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:      time.Hour,
		ConsumerRetry: 5 * time.Second,
	}
}

// Stats counts the work done since Start.
type Stats struct {
	Passes    int64 `json:"passes"`
	Generated int64 `json:"generated"`
	Syncs     int64 `json:"syncs"`
	Rejected  int64 `json:"rejected"`
}

type Worker struct {
	ledger   Ledger
	consumer SyncConsumer
	config   Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}

	passes    atomic.Int64
	generated atomic.Int64
	syncs     atomic.Int64
	rejected  atomic.Int64
}

// New creates a worker. consumer may be nil, in which case only the
// expansion ticker runs.
func New(ledger Ledger, consumer SyncConsumer, config Config) *Worker {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.ConsumerRetry <= 0 {
		config.ConsumerRetry = defaults.ConsumerRetry
	}
	return &Worker{ledger: ledger, consumer: consumer, config: config}
}

// Start launches the loops. Returns an error if already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	done := w.doneCh
	w.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return w.expansionLoop(gctx) })
	if w.consumer != nil {
		g.Go(func() error { return w.consumeLoop(gctx) })
	}

	go func() {
		defer close(done)
		if err := g.Wait(); err != nil {
			slog.ErrorContext(ctx, "Worker stopped with error", "owner", w.ledger.Owner(), "error", err)
		}
	}()

	slog.InfoContext(ctx, "Worker started",
		"owner", w.ledger.Owner(),
		"interval", w.config.Interval,
		"sync_consumer", w.consumer != nil)
	return nil
}

// Stop cancels the loops and waits for them, or for ctx to end.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.doneCh
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		slog.InfoContext(ctx, "Worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// IsRunning returns whether the loops are active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) Stats() Stats {
	return Stats{
		Passes:    w.passes.Load(),
		Generated: w.generated.Load(),
		Syncs:     w.syncs.Load(),
		Rejected:  w.rejected.Load(),
	}
}

// RunOnce performs a single expansion pass.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	n, err := w.ledger.ExpandDue(ctx)
	w.passes.Add(1)
	if err != nil {
		return 0, fmt.Errorf("expand due occurrences: %w", err)
	}
	w.generated.Add(int64(n))
	return n, nil
}

func (w *Worker) expansionLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

// pass logs failures and keeps the loop alive; the next tick retries.
func (w *Worker) pass(ctx context.Context) {
	n, err := w.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.ErrorContext(ctx, "Recurring expansion failed", "owner", w.ledger.Owner(), "error", err)
		}
		return
	}
	slog.InfoContext(ctx, "Recurring expansion pass complete",
		"owner", w.ledger.Owner(),
		"generated", n,
		"next_check", time.Now().Add(w.config.Interval).Format("15:04:05"))
}

func (w *Worker) consumeLoop(ctx context.Context) error {
	for {
		err := w.consumer.ConsumeLedgerSync(ctx, w.HandleSync)
		if ctx.Err() != nil {
			return nil
		}
		slog.WarnContext(ctx, "Sync consumer stopped, resubscribing",
			"error", err, "retry_in", w.config.ConsumerRetry)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.config.ConsumerRetry):
		}
	}
}

// HandleSync applies an inbound snapshot. Messages addressed to another owner
// are dropped without error so they are acknowledged and not redelivered.
func (w *Worker) HandleSync(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	if msg.Owner != w.ledger.Owner() {
		w.rejected.Add(1)
		slog.WarnContext(ctx, "Ignoring sync message for another ledger",
			"owner", w.ledger.Owner(), "message_owner", msg.Owner)
		return nil
	}
	if err := w.ledger.Sync(ctx, msg.Snapshot); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	w.syncs.Add(1)
	return nil
}
