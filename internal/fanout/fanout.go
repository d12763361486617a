// Package fanout implements the per-session subscriber bus: attach,
// detach, and broadcast a message to every subscriber of a session (or to
// every subscriber across all sessions), self-healing by detaching any
// subscriber whose delivery fails.
package fanout

import (
	"sync"

	"github.com/linuxmatters/eegmonitor/internal/eegerr"
)

// Subscriber receives one broadcast message. Send must be safe to call
// from the bus's broadcasting goroutine; a non-nil error marks the
// subscriber dead and detaches it.
type Subscriber interface {
	Send(msg any) error
	ID() string
}

const shardCount = 16

// Bus is a session-keyed fan-out bus. Rather than one global mutex guarding
// every session's subscriber set, the bus stripes sessions across a fixed
// number of shards so that broadcasting to one session never blocks
// attach/detach on an unrelated one. A separate session-less pool holds
// subscribers that want every session's traffic (dashboards, monitors);
// they are reached only by BroadcastAll.
type Bus struct {
	shards [shardCount]*shard

	generalMu sync.RWMutex
	general   map[string]Subscriber
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Subscriber // session id -> subscriber id -> subscriber
}

// New constructs an empty Bus.
func New() *Bus {
	b := &Bus{general: make(map[string]Subscriber)}
	for i := range b.shards {
		b.shards[i] = &shard{sessions: make(map[string]map[string]Subscriber)}
	}
	return b
}

func (b *Bus) shardFor(sessionID string) *shard {
	return b.shards[fnv32(sessionID)%shardCount]
}

// Attach registers a subscriber under a session id. Re-attaching an
// already-registered subscriber is a no-op.
func (b *Bus) Attach(sessionID string, sub Subscriber) {
	s := b.shardFor(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.sessions[sessionID]
	if !ok {
		subs = make(map[string]Subscriber)
		s.sessions[sessionID] = subs
	}
	subs[sub.ID()] = sub
}

// Detach removes a subscriber from a session, cleaning up the session
// entry entirely once empty.
func (b *Bus) Detach(sessionID, subID string) {
	s := b.shardFor(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(s.sessions, sessionID)
	}
}

// AttachGeneral registers a session-less subscriber, reached only by
// BroadcastAll. Re-attaching an already-registered subscriber is a no-op.
func (b *Bus) AttachGeneral(sub Subscriber) {
	b.generalMu.Lock()
	defer b.generalMu.Unlock()
	b.general[sub.ID()] = sub
}

// DetachGeneral removes a subscriber from the session-less pool.
func (b *Bus) DetachGeneral(subID string) {
	b.generalMu.Lock()
	defer b.generalMu.Unlock()
	delete(b.general, subID)
}

// Broadcast sends msg to every subscriber of sessionID: the subscriber
// set is copied under the read lock, delivery happens outside any lock,
// and any subscriber whose Send fails is detached.
func (b *Bus) Broadcast(sessionID string, msg any) error {
	s := b.shardFor(sessionID)

	s.mu.RLock()
	snapshot := snapshotSubscribers(s.sessions[sessionID])
	s.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	var lastErr error
	for _, sub := range snapshot {
		if err := sub.Send(msg); err != nil {
			b.Detach(sessionID, sub.ID())
			lastErr = eegerr.NewTransientDelivery(sessionID, err)
		}
	}
	return lastErr
}

// BroadcastAll sends msg to every subscriber across every session, plus
// the session-less pool.
func (b *Bus) BroadcastAll(msg any) {
	for _, s := range b.shards {
		s.mu.RLock()
		bySession := make(map[string][]Subscriber, len(s.sessions))
		for sessionID, subs := range s.sessions {
			bySession[sessionID] = snapshotSubscribers(subs)
		}
		s.mu.RUnlock()

		for sessionID, subs := range bySession {
			for _, sub := range subs {
				if err := sub.Send(msg); err != nil {
					b.Detach(sessionID, sub.ID())
				}
			}
		}
	}

	b.generalMu.RLock()
	general := snapshotSubscribers(b.general)
	b.generalMu.RUnlock()

	for _, sub := range general {
		if err := sub.Send(msg); err != nil {
			b.DetachGeneral(sub.ID())
		}
	}
}

// SessionCount returns the number of active subscribers for a session.
func (b *Bus) SessionCount(sessionID string) int {
	s := b.shardFor(sessionID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}

// TotalCount returns the number of active subscribers across every
// session, including the session-less pool.
func (b *Bus) TotalCount() int {
	total := 0
	for _, s := range b.shards {
		s.mu.RLock()
		for _, subs := range s.sessions {
			total += len(subs)
		}
		s.mu.RUnlock()
	}
	b.generalMu.RLock()
	total += len(b.general)
	b.generalMu.RUnlock()
	return total
}

func snapshotSubscribers(subs map[string]Subscriber) []Subscriber {
	out := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

// fnv32 is a small non-cryptographic hash used only to pick a shard;
// collisions across sessions are harmless, they just share a lock.
func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
