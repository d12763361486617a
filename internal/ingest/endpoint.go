package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/linuxmatters/eegmonitor/internal/config"
	"github.com/linuxmatters/eegmonitor/internal/eegerr"
	"github.com/linuxmatters/eegmonitor/internal/fanout"
)

// Channels carries the four Muse channel scalars already reduced to one
// value per channel, matching the wire contract's "channels" object.
type Channels struct {
	TP9, AF7, AF8, TP10 float64
}

// Processed is the optional pre-computed metrics bundle a producer may
// attach to a record, matching the wire contract's "processed" object.
type Processed struct {
	ThetaPower      float64 `json:"theta_power"`
	AlphaPower      float64 `json:"alpha_power"`
	BetaPower       float64 `json:"beta_power"`
	GammaPower      float64 `json:"gamma_power"`
	ThetaAlphaRatio float64 `json:"theta_alpha_ratio"`
	BetaAlphaRatio  float64 `json:"beta_alpha_ratio"`
	EEGFatigueScore float64 `json:"eeg_fatigue_score"`
	SignalQuality   float64 `json:"signal_quality"`
	CognitiveState  string  `json:"cognitive_state"`
}

// Record is one ingestion frame, matching POST /eeg/stream's body.
type Record struct {
	SessionID  string
	Timestamp  time.Time
	SampleRate int
	Channels   Channels
	Processed  *Processed
	SaveToDB   bool
}

// IngestResult is returned to the caller on a successful ingest, matching
// the endpoint's {status, timestamp, clients_notified} response.
type IngestResult struct {
	Status          string
	Timestamp       time.Time
	ClientsNotified int
}

// Endpoint validates incoming records, tracks per-session liveness,
// broadcasts to the fan-out bus, and optionally enqueues a persistable
// projection into the batch writer, off the request path.
type Endpoint struct {
	cfg    config.IngestConfig
	bus    *fanout.Bus
	buffer *Buffer

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewEndpoint constructs an Endpoint. buffer may be nil if persistence is
// not wired up; records with SaveToDB true are then silently not enqueued.
func NewEndpoint(cfg config.IngestConfig, bus *fanout.Bus, buffer *Buffer) *Endpoint {
	return &Endpoint{
		cfg:      cfg,
		bus:      bus,
		buffer:   buffer,
		lastSeen: make(map[string]time.Time),
	}
}

// Ingest validates, records liveness, broadcasts, and optionally enqueues
// the record. Broadcast and buffer errors are absorbed, not surfaced: a
// lost subscriber or a slow flush must not fail the producer's post.
// Only validation failures are returned.
func (e *Endpoint) Ingest(ctx context.Context, rec Record) (IngestResult, error) {
	if err := e.validate(rec); err != nil {
		return IngestResult{}, err
	}

	now := time.Now().UTC()
	e.mu.Lock()
	e.lastSeen[rec.SessionID] = now
	e.mu.Unlock()

	clientsNotified := e.bus.SessionCount(rec.SessionID)
	_ = e.bus.Broadcast(rec.SessionID, egressMessage(rec))

	if rec.SaveToDB && e.buffer != nil {
		go func() {
			_, _ = e.buffer.Add(ctx, rec)
		}()
	}

	return IngestResult{
		Status:          "received",
		Timestamp:       rec.Timestamp,
		ClientsNotified: clientsNotified,
	}, nil
}

// validate enforces the timestamp window and basic field sanity. Channels
// is a fixed-shape struct, so "missing channels" reduces to a non-positive
// sample rate or an empty session id.
func (e *Endpoint) validate(rec Record) error {
	if rec.SessionID == "" {
		return eegerr.NewValidation("session_id", "must not be empty")
	}
	if rec.SampleRate <= 0 {
		return eegerr.NewValidation("sample_rate", "must be positive")
	}

	now := time.Now().UTC()
	skew := now.Sub(rec.Timestamp)
	if skew > e.cfg.MaxPastSkew {
		return eegerr.NewValidation("timestamp", "too far in the past")
	}
	if skew < -e.cfg.MaxFutureSkew {
		return eegerr.NewValidation("timestamp", "too far in the future")
	}
	return nil
}

// LastSeen reports the last time a record was accepted for sessionID.
func (e *Endpoint) LastSeen(sessionID string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.lastSeen[sessionID]
	return t, ok
}

// StatusSnapshot is the response shape for GET /eeg/status.
type StatusSnapshot struct {
	ActiveSessions   int
	Sessions         []string
	LastActivity     map[string]time.Time
	SubscriberCounts map[string]int
}

// Status returns a point-in-time view of every tracked session.
func (e *Endpoint) Status() StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions := make([]string, 0, len(e.lastSeen))
	lastActivity := make(map[string]time.Time, len(e.lastSeen))
	counts := make(map[string]int, len(e.lastSeen))
	for sessionID, t := range e.lastSeen {
		sessions = append(sessions, sessionID)
		lastActivity[sessionID] = t
		counts[sessionID] = e.bus.SessionCount(sessionID)
	}

	return StatusSnapshot{
		ActiveSessions:   len(e.lastSeen),
		Sessions:         sessions,
		LastActivity:     lastActivity,
		SubscriberCounts: counts,
	}
}

// StopSession clears a session's liveness entry and notifies its
// subscribers that the stream has stopped. It reports whether the session
// was tracked.
func (e *Endpoint) StopSession(sessionID string) bool {
	e.mu.Lock()
	_, ok := e.lastSeen[sessionID]
	if ok {
		delete(e.lastSeen, sessionID)
	}
	e.mu.Unlock()

	if !ok {
		return false
	}
	_ = e.bus.Broadcast(sessionID, map[string]any{"type": "eeg_stopped", "session_id": sessionID})
	return true
}

func egressMessage(rec Record) map[string]any {
	msg := map[string]any{
		"type":        "eeg_data",
		"session_id":  rec.SessionID,
		"timestamp":   rec.Timestamp,
		"sample_rate": rec.SampleRate,
		"channels": map[string]float64{
			"TP9": rec.Channels.TP9, "AF7": rec.Channels.AF7,
			"AF8": rec.Channels.AF8, "TP10": rec.Channels.TP10,
		},
	}
	if rec.Processed != nil {
		msg["processed"] = rec.Processed
	}
	return msg
}
