// Package transport is the thin HTTP framing layer around internal/ingest:
// route registration, JSON decode/encode, and status-code mapping. No
// signal-processing or business logic lives here.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/linuxmatters/eegmonitor/internal/eegerr"
	"github.com/linuxmatters/eegmonitor/internal/ingest"
)

// Server wires an ingest.Endpoint and an ingest.Buffer behind a chi router.
type Server struct {
	router   chi.Router
	endpoint *ingest.Endpoint
	buffer   *ingest.Buffer
	log      *logrus.Logger
	timeout  time.Duration
}

// NewServer builds the router: POST /eeg/stream, GET /eeg/status,
// GET /eeg/buffer/stats, DELETE /eeg/session/{id}.
func NewServer(endpoint *ingest.Endpoint, buffer *ingest.Buffer, log *logrus.Logger, timeout time.Duration) *Server {
	s := &Server{
		endpoint: endpoint,
		buffer:   buffer,
		log:      log,
		timeout:  timeout,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/eeg", func(r chi.Router) {
		r.Post("/stream", s.handleStream)
		r.Get("/status", s.handleStatus)
		r.Get("/buffer/stats", s.handleBufferStats)
		r.Delete("/session/{sessionID}", s.handleStopSession)
	})

	s.router = r
	return s
}

// ServeHTTP lets Server satisfy http.Handler directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type streamRequest struct {
	SessionID  string            `json:"session_id"`
	Timestamp  time.Time         `json:"timestamp"`
	SampleRate int               `json:"sample_rate"`
	Channels   channelsPayload   `json:"channels"`
	Processed  *processedPayload `json:"processed"`
	SaveToDB   bool              `json:"save_to_db"`
}

type channelsPayload struct {
	TP9  float64 `json:"TP9"`
	AF7  float64 `json:"AF7"`
	AF8  float64 `json:"AF8"`
	TP10 float64 `json:"TP10"`
}

type processedPayload struct {
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

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec := ingest.Record{
		SessionID:  req.SessionID,
		Timestamp:  req.Timestamp,
		SampleRate: req.SampleRate,
		Channels: ingest.Channels{
			TP9: req.Channels.TP9, AF7: req.Channels.AF7,
			AF8: req.Channels.AF8, TP10: req.Channels.TP10,
		},
		SaveToDB: req.SaveToDB,
	}
	if req.Processed != nil {
		rec.Processed = &ingest.Processed{
			ThetaPower:      req.Processed.ThetaPower,
			AlphaPower:      req.Processed.AlphaPower,
			BetaPower:       req.Processed.BetaPower,
			GammaPower:      req.Processed.GammaPower,
			ThetaAlphaRatio: req.Processed.ThetaAlphaRatio,
			BetaAlphaRatio:  req.Processed.BetaAlphaRatio,
			EEGFatigueScore: req.Processed.EEGFatigueScore,
			SignalQuality:   req.Processed.SignalQuality,
			CognitiveState:  req.Processed.CognitiveState,
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	result, err := s.endpoint.Ingest(ctx, rec)
	if err != nil {
		var validationErr *eegerr.Validation
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.log.WithError(err).Error("ingest failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           result.Status,
		"timestamp":        result.Timestamp,
		"clients_notified": result.ClientsNotified,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.endpoint.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "operational",
		"active_eeg_sessions": status.ActiveSessions,
		"sessions":            status.Sessions,
		"last_activity":       status.LastActivity,
		"subscriber_counts":   status.SubscriberCounts,
	})
}

func (s *Server) handleBufferStats(w http.ResponseWriter, r *http.Request) {
	if s.buffer == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "buffer": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"buffer": s.buffer.Stats(),
	})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !s.endpoint.StopSession(sessionID) {
		writeError(w, http.StatusNotFound, errSessionNotFound(sessionID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped", "session_id": sessionID})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"status": "error", "error": err.Error()})
}

type sessionNotFoundError string

func (e sessionNotFoundError) Error() string { return "no active eeg session found for " + string(e) }

func errSessionNotFound(sessionID string) error { return sessionNotFoundError(sessionID) }
