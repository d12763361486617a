package device

import (
	"context"
	"testing"
	"time"
)

func TestPullChunkReturnsExpectedShape(t *testing.T) {
	src := NewSyntheticSource(4, 256, 1)
	frame, err := src.PullChunk(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("PullChunk: %v", err)
	}
	if len(frame.Samples) == 0 {
		t.Fatalf("expected non-empty frame")
	}
	for _, row := range frame.Samples {
		if len(row) != 4 {
			t.Fatalf("expected 4 channels, got %d", len(row))
		}
	}
	if len(frame.Timestamps) != len(frame.Samples) {
		t.Fatalf("timestamps length %d != samples length %d", len(frame.Timestamps), len(frame.Samples))
	}
}

func TestPullChunkAfterCloseFails(t *testing.T) {
	src := NewSyntheticSource(4, 256, 1)
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.PullChunk(context.Background(), 10*time.Millisecond); err == nil {
		t.Fatalf("expected error pulling from a closed source")
	}
}

func TestPullChunkRespectsCancellation(t *testing.T) {
	src := NewSyntheticSource(4, 256, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frame, err := src.PullChunk(ctx, time.Second)
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
	if len(frame.Samples) != 0 {
		t.Fatalf("expected no samples once cancelled immediately, got %d", len(frame.Samples))
	}
}
