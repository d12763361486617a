package fanout

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id       string
	mu       sync.Mutex
	received []any
	failNext bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("boom")
	}
	f.received = append(f.received, msg)
	return nil
}

func TestAttachBroadcastDetach(t *testing.T) {
	bus := New()
	sub := &fakeSubscriber{id: "a"}
	bus.Attach("session-1", sub)

	require.Equal(t, 1, bus.SessionCount("session-1"))

	err := bus.Broadcast("session-1", "hello")
	require.NoError(t, err)
	require.Equal(t, []any{"hello"}, sub.received)

	bus.Detach("session-1", "a")
	require.Equal(t, 0, bus.SessionCount("session-1"))
}

func TestBroadcastDetachesFailingSubscriber(t *testing.T) {
	bus := New()
	sub := &fakeSubscriber{id: "bad", failNext: true}
	bus.Attach("session-1", sub)

	err := bus.Broadcast("session-1", "hello")
	require.Error(t, err)
	require.Equal(t, 0, bus.SessionCount("session-1"))
}

func TestBroadcastToUnknownSessionIsNoop(t *testing.T) {
	bus := New()
	require.NoError(t, bus.Broadcast("nonexistent", "hello"))
}

func TestBroadcastAllReachesEverySession(t *testing.T) {
	bus := New()
	subA := &fakeSubscriber{id: "a"}
	subB := &fakeSubscriber{id: "b"}
	general := &fakeSubscriber{id: "g"}
	bus.Attach("session-1", subA)
	bus.Attach("session-2", subB)
	bus.AttachGeneral(general)

	bus.BroadcastAll("ping")

	require.Equal(t, []any{"ping"}, subA.received)
	require.Equal(t, []any{"ping"}, subB.received)
	require.Equal(t, []any{"ping"}, general.received)
	require.Equal(t, 3, bus.TotalCount())
}

func TestGeneralSubscriberSkippedBySessionBroadcast(t *testing.T) {
	bus := New()
	general := &fakeSubscriber{id: "g"}
	bus.AttachGeneral(general)

	require.NoError(t, bus.Broadcast("session-1", "hello"))
	require.Empty(t, general.received)

	bus.DetachGeneral("g")
	require.Equal(t, 0, bus.TotalCount())
}

func TestBroadcastAllDetachesFailingGeneralSubscriber(t *testing.T) {
	bus := New()
	bad := &fakeSubscriber{id: "bad", failNext: true}
	bus.AttachGeneral(bad)

	bus.BroadcastAll("ping")
	require.Equal(t, 0, bus.TotalCount())
}

func TestConcurrentAttachDetachBroadcast(t *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := &fakeSubscriber{id: string(rune('a' + i%26))}
			bus.Attach("session-shared", sub)
			bus.Broadcast("session-shared", i)
			bus.Detach("session-shared", sub.ID())
		}(i)
	}
	wg.Wait()
}
