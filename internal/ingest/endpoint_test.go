package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/eegmonitor/internal/config"
	"github.com/linuxmatters/eegmonitor/internal/fanout"
)

type captureSubscriber struct {
	id       string
	received []any
}

func (c *captureSubscriber) ID() string { return c.id }
func (c *captureSubscriber) Send(msg any) error {
	c.received = append(c.received, msg)
	return nil
}

func newTestEndpoint() (*Endpoint, *fanout.Bus) {
	bus := fanout.New()
	return NewEndpoint(config.DefaultIngestConfig(), bus, nil), bus
}

func validRecord(sessionID string) Record {
	return Record{
		SessionID:  sessionID,
		Timestamp:  time.Now().UTC(),
		SampleRate: 256,
		Channels:   Channels{TP9: 1, AF7: 2, AF8: 3, TP10: 4},
	}
}

func TestIngestRejectsStaleTimestamp(t *testing.T) {
	ep, _ := newTestEndpoint()
	rec := validRecord("s1")
	rec.Timestamp = time.Now().UTC().Add(-2 * time.Minute)
	_, err := ep.Ingest(context.Background(), rec)
	require.Error(t, err)
}

func TestIngestRejectsFutureTimestamp(t *testing.T) {
	ep, _ := newTestEndpoint()
	rec := validRecord("s1")
	rec.Timestamp = time.Now().UTC().Add(20 * time.Second)
	_, err := ep.Ingest(context.Background(), rec)
	require.Error(t, err)
}

func TestIngestRejectsNonPositiveSampleRate(t *testing.T) {
	ep, _ := newTestEndpoint()
	rec := validRecord("s1")
	rec.SampleRate = 0
	_, err := ep.Ingest(context.Background(), rec)
	require.Error(t, err)
}

func TestIngestBroadcastsAndReportsClientCount(t *testing.T) {
	ep, bus := newTestEndpoint()
	sub := &captureSubscriber{id: "client-1"}
	bus.Attach("s1", sub)

	result, err := ep.Ingest(context.Background(), validRecord("s1"))
	require.NoError(t, err)
	require.Equal(t, "received", result.Status)
	require.Equal(t, 1, result.ClientsNotified)
	require.Len(t, sub.received, 1)
}

func TestIngestRecordsLastSeen(t *testing.T) {
	ep, _ := newTestEndpoint()
	before := time.Now().UTC()
	_, err := ep.Ingest(context.Background(), validRecord("s1"))
	require.NoError(t, err)

	seen, ok := ep.LastSeen("s1")
	require.True(t, ok)
	require.True(t, !seen.Before(before))
}

func TestStatusReflectsActiveSessions(t *testing.T) {
	ep, _ := newTestEndpoint()
	_, _ = ep.Ingest(context.Background(), validRecord("s1"))
	_, _ = ep.Ingest(context.Background(), validRecord("s2"))

	status := ep.Status()
	require.Equal(t, 2, status.ActiveSessions)
	require.Contains(t, status.Sessions, "s1")
	require.Contains(t, status.Sessions, "s2")
}

func TestStopSessionClearsAndNotifies(t *testing.T) {
	ep, bus := newTestEndpoint()
	sub := &captureSubscriber{id: "client-1"}
	bus.Attach("s1", sub)
	_, _ = ep.Ingest(context.Background(), validRecord("s1"))

	require.True(t, ep.StopSession("s1"))
	_, ok := ep.LastSeen("s1")
	require.False(t, ok)

	require.False(t, ep.StopSession("s1"), "stopping an already-stopped session reports false")

	require.Len(t, sub.received, 2) // eeg_data, then eeg_stopped
}

func TestIngestIsIdempotentForDuplicateTimestamp(t *testing.T) {
	ep, bus := newTestEndpoint()
	sub := &captureSubscriber{id: "client-1"}
	bus.Attach("s1", sub)

	rec := validRecord("s1")
	_, err := ep.Ingest(context.Background(), rec)
	require.NoError(t, err)
	_, err = ep.Ingest(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, sub.received, 2)
}
