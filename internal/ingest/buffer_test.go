package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/eegmonitor/internal/config"
)

func TestAddTriggersFlushAtMaxSize(t *testing.T) {
	var flushed [][]any
	var mu sync.Mutex
	cfg := config.BufferConfig{MaxSize: 3, MaxTime: time.Hour, TickerEvery: time.Hour}
	buf := NewBuffer(cfg, func(_ context.Context, items []any) error {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, items)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		triggered, err := buf.Add(ctx, i)
		require.NoError(t, err)
		require.False(t, triggered)
	}
	triggered, err := buf.Add(ctx, 2)
	require.NoError(t, err)
	require.True(t, triggered)

	stats := buf.Stats()
	require.Equal(t, 0, stats.CurrentSize)
	require.Equal(t, 1, stats.TotalFlushes)
	require.Equal(t, 3, stats.TotalItemsProcessed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, 1)
	require.Equal(t, []any{0, 1, 2}, flushed[0])
}

func TestFlushFailureRePrependsItems(t *testing.T) {
	attempt := 0
	cfg := config.BufferConfig{MaxSize: 100, MaxTime: time.Hour, TickerEvery: time.Hour}
	buf := NewBuffer(cfg, func(_ context.Context, items []any) error {
		attempt++
		if attempt == 1 {
			return errors.New("db down")
		}
		return nil
	})

	ctx := context.Background()
	_, _ = buf.Add(ctx, "a")
	_, _ = buf.Add(ctx, "b")

	_, err := buf.Flush(ctx)
	require.Error(t, err)
	require.Equal(t, 2, buf.Stats().CurrentSize)

	n, err := buf.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 0, buf.Stats().CurrentSize)
}

func TestStopFlushesRemainingData(t *testing.T) {
	var flushedCount int
	var mu sync.Mutex
	cfg := config.BufferConfig{MaxSize: 100, MaxTime: time.Hour, TickerEvery: 10 * time.Millisecond}
	buf := NewBuffer(cfg, func(_ context.Context, items []any) error {
		mu.Lock()
		defer mu.Unlock()
		flushedCount += len(items)
		return nil
	})

	ctx := context.Background()
	buf.Start(ctx)
	_, _ = buf.Add(ctx, "x")
	_, _ = buf.Add(ctx, "y")

	err := buf.Stop(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, flushedCount)
}

func TestFlushOnEmptyBufferIsNoop(t *testing.T) {
	cfg := config.DefaultBufferConfig()
	buf := NewBuffer(cfg, func(_ context.Context, items []any) error {
		t.Fatalf("flush callback should not be called on empty buffer")
		return nil
	})
	n, err := buf.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestTickerFlushesOnTimeThreshold(t *testing.T) {
	var mu sync.Mutex
	flushed := false
	cfg := config.BufferConfig{MaxSize: 1000, MaxTime: 20 * time.Millisecond, TickerEvery: 5 * time.Millisecond}
	buf := NewBuffer(cfg, func(_ context.Context, items []any) error {
		mu.Lock()
		defer mu.Unlock()
		flushed = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf.Start(ctx)
	_, _ = buf.Add(ctx, "lonely")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return flushed
	}, time.Second, 5*time.Millisecond)
}

func TestAddManyTriggersFlushAtMaxSize(t *testing.T) {
	var flushed [][]any
	var mu sync.Mutex
	cfg := config.BufferConfig{MaxSize: 3, MaxTime: time.Hour, TickerEvery: time.Hour}
	buf := NewBuffer(cfg, func(_ context.Context, items []any) error {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, items)
		return nil
	})

	triggered, err := buf.AddMany(context.Background(), []any{0, 1, 2})
	require.NoError(t, err)
	require.True(t, triggered)

	stats := buf.Stats()
	require.Equal(t, 0, stats.CurrentSize)
	require.Equal(t, 1, stats.TotalFlushes)
	require.Equal(t, 3, stats.TotalItemsProcessed)

	mu.Lock()
	require.Equal(t, [][]any{{0, 1, 2}}, flushed)
	mu.Unlock()
}

func TestAddManyEmptyIsNoop(t *testing.T) {
	cfg := config.DefaultBufferConfig()
	buf := NewBuffer(cfg, func(_ context.Context, items []any) error {
		t.Fatalf("flush callback should not be called for an empty AddMany")
		return nil
	})
	triggered, err := buf.AddMany(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, triggered)
}

// TestConcurrentFlushesAreSerialized drives size-triggered Adds and the
// ticker's time-triggered flush at the same time and asserts the flush
// callback itself never overlaps: exactly one flush in progress at any
// instant.
func TestConcurrentFlushesAreSerialized(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	maxConcurrent := 0
	cfg := config.BufferConfig{MaxSize: 2, MaxTime: 5 * time.Millisecond, TickerEvery: time.Millisecond}
	buf := NewBuffer(cfg, func(_ context.Context, items []any) error {
		mu.Lock()
		inFlight++
		if inFlight > maxConcurrent {
			maxConcurrent = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = buf.Add(context.Background(), i)
		}(i)
	}
	wg.Wait()

	require.NoError(t, buf.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, maxConcurrent, "flush callback must never run concurrently with itself")
}
