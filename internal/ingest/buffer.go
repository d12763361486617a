// Package ingest implements the batch writer (Buffer) and the ingestion
// endpoint (Endpoint). Buffer is a size-or-time-triggered flush queue;
// Endpoint validates, tracks, and forwards incoming frames.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/linuxmatters/eegmonitor/internal/config"
	"github.com/linuxmatters/eegmonitor/internal/eegerr"
)

// FlushFunc persists one batch of records. A non-nil error causes the
// batch to be re-prepended to the buffer rather than dropped, so arrival
// order is preserved on retry.
type FlushFunc func(ctx context.Context, items []any) error

// Stats is the snapshot returned by Buffer.Stats.
type Stats struct {
	CurrentSize         int
	MaxSize             int
	MaxTime             time.Duration
	TotalItemsProcessed int
	TotalFlushes        int
	AvgItemsPerFlush    float64
	TimeSinceLastFlush  time.Duration
	IsRunning           bool
}

// Buffer accumulates records and flushes them to FlushFunc either when the
// buffer reaches MaxSize or when MaxTime has elapsed since the last flush,
// whichever comes first. A dedicated goroutine started by Start ticks
// every TickerEvery to check the time-based trigger; Stop cancels it and
// performs one final flush.
type Buffer struct {
	cfg   config.BufferConfig
	flush FlushFunc

	mu             sync.Mutex
	items          []any
	lastFlushTime  time.Time
	totalProcessed int
	totalFlushes   int

	// flushMu is held for the full duration of one Flush call (snapshot,
	// callback, and either commit or re-prepend) so that a size-triggered
	// Add and the ticker's time-triggered flush can never run the callback
	// concurrently: exactly one flush is in progress at any instant.
	flushMu sync.Mutex

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewBuffer constructs a Buffer around the given flush callback.
func NewBuffer(cfg config.BufferConfig, flush FlushFunc) *Buffer {
	return &Buffer{
		cfg:           cfg,
		flush:         flush,
		lastFlushTime: time.Now(),
	}
}

// Start launches the background ticker goroutine. It is a no-op if
// already running.
func (b *Buffer) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	tickerCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go b.backgroundWorker(tickerCtx)
}

// Stop cancels the ticker, waits for it to exit, then performs a final
// flush.
func (b *Buffer) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	_, err := b.Flush(ctx)
	return err
}

// Add appends item to the buffer, triggering an immediate synchronous
// flush if the size threshold is reached. Returns true if a flush
// occurred.
func (b *Buffer) Add(ctx context.Context, item any) (bool, error) {
	b.mu.Lock()
	b.items = append(b.items, item)
	trigger := len(b.items) >= b.cfg.MaxSize
	b.mu.Unlock()

	if !trigger {
		return false, nil
	}
	_, err := b.Flush(ctx)
	return true, err
}

// AddMany appends items to the buffer in one call, triggering an
// immediate synchronous flush if the size threshold is reached. Returns
// true if a flush occurred.
func (b *Buffer) AddMany(ctx context.Context, items []any) (bool, error) {
	if len(items) == 0 {
		return false, nil
	}

	b.mu.Lock()
	b.items = append(b.items, items...)
	trigger := len(b.items) >= b.cfg.MaxSize
	b.mu.Unlock()

	if !trigger {
		return false, nil
	}
	_, err := b.Flush(ctx)
	return true, err
}

// Flush snapshots and clears the buffer, updates last-flush bookkeeping,
// then invokes the flush callback outside the buffer lock. flushMu is
// held for the whole call so that a size-triggered flush from Add and a
// time-triggered flush from the background ticker can never overlap,
// preserving enqueue order across the callback (two concurrent
// pgx.CopyFrom calls could otherwise complete out of order). On failure
// the snapshot is re-prepended so no record is lost, and the error is
// returned wrapped as a TransientPersistence error.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.items) == 0 {
		b.mu.Unlock()
		return 0, nil
	}
	snapshot := b.items
	b.items = nil
	b.lastFlushTime = time.Now()
	b.mu.Unlock()

	if err := b.flush(ctx, snapshot); err != nil {
		b.mu.Lock()
		b.items = append(append([]any(nil), snapshot...), b.items...)
		b.mu.Unlock()
		return 0, eegerr.NewTransientPersistence(len(snapshot), err)
	}

	b.mu.Lock()
	b.totalProcessed += len(snapshot)
	b.totalFlushes++
	b.mu.Unlock()

	return len(snapshot), nil
}

// Stats returns a point-in-time snapshot of the buffer's counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	avg := 0.0
	if b.totalFlushes > 0 {
		avg = float64(b.totalProcessed) / float64(b.totalFlushes)
	}

	return Stats{
		CurrentSize:         len(b.items),
		MaxSize:             b.cfg.MaxSize,
		MaxTime:             b.cfg.MaxTime,
		TotalItemsProcessed: b.totalProcessed,
		TotalFlushes:        b.totalFlushes,
		AvgItemsPerFlush:    avg,
		TimeSinceLastFlush:  time.Since(b.lastFlushTime),
		IsRunning:           b.running,
	}
}

func (b *Buffer) backgroundWorker(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.TickerEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			due := time.Since(b.lastFlushTime) >= b.cfg.MaxTime && len(b.items) > 0
			b.mu.Unlock()
			if due {
				_, _ = b.Flush(ctx)
			}
		}
	}
}
