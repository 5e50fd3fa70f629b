// Package api is the HTTP surface for session records: creation, lookup,
// client-side completion and on-demand sweeps.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/FurqatMashrabjonov/speech-coach/internal/session"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
	"github.com/FurqatMashrabjonov/speech-coach/internal/sweeper"
)

// maxBodyBytes caps request bodies; transcripts are the largest field.
const maxBodyBytes = 1 << 20

// SweepRunner runs one sweep. *sweeper.Sweeper satisfies it.
type SweepRunner interface {
	RunOnce(ctx context.Context) (sweeper.Report, error)
}

// Options wires the server's collaborators. Only Repo is required.
type Options struct {
	Repo store.SessionRepo
	// OnCreate fires after a record is stored. It must not block.
	OnCreate func(ref session.Ref)
	Sweeper  SweepRunner
	Logger   zerolog.Logger
}

// Server handles the HTTP API.
type Server struct {
	repo     store.SessionRepo
	onCreate func(ref session.Ref)
	sweeper  SweepRunner
	log      zerolog.Logger
	router   chi.Router

	now   func() time.Time
	newID func() string
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	s := &Server{
		repo:     opts.Repo,
		onCreate: opts.OnCreate,
		sweeper:  opts.Sweeper,
		log:      opts.Logger.With().Str("component", "api").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/users/{userID}/sessions", s.handleCreateSession)
		r.Get("/users/{userID}/sessions/{sessionID}", s.handleGetSession)
		r.Put("/users/{userID}/sessions/{sessionID}/feedback", s.handlePutFeedback)
		r.Post("/sweeps", s.handleSweep)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// CreateSessionRequest is the body of POST /v1/users/{userID}/sessions.
type CreateSessionRequest struct {
	Transcript     string `json:"transcript"`
	Category       string `json:"category"`
	ScenarioTitle  string `json:"scenarioTitle"`
	ScenarioPrompt string `json:"scenarioPrompt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}

	rec := &session.Record{
		Ref:            session.Ref{UserID: chi.URLParam(r, "userID"), SessionID: s.newID()},
		Transcript:     req.Transcript,
		Category:       req.Category,
		ScenarioTitle:  req.ScenarioTitle,
		ScenarioPrompt: req.ScenarioPrompt,
		FeedbackStatus: session.StatusPending,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.repo.Create(r.Context(), rec); err != nil {
		s.storeError(w, r, err)
		return
	}
	if s.onCreate != nil {
		s.onCreate(rec.Ref)
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.repo.Get(r.Context(), refFrom(r))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handlePutFeedback is the client-side completion path. Scores are stored
// as sent; XP is always derived from the overall score.
func (s *Server) handlePutFeedback(w http.ResponseWriter, r *http.Request) {
	var fb session.Feedback
	if err := decodeBody(w, r, &fb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fb.XPEarned = session.XPFor(fb.OverallScore)
	if fb.Strengths == nil {
		fb.Strengths = []string{}
	}
	if fb.Improvements == nil {
		fb.Improvements = []string{}
	}

	ref := refFrom(r)
	if err := s.repo.Complete(r.Context(), ref, fb, session.GeneratedByClient); err != nil {
		s.storeError(w, r, err)
		return
	}
	rec, err := s.repo.Get(r.Context(), ref)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper not configured")
		return
	}
	report, err := s.sweeper.RunOnce(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("on-demand sweep failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// storeError maps repository errors onto status codes.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, store.ErrNotPending):
		writeError(w, http.StatusConflict, "feedback already settled")
	case errors.Is(err, store.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "session already exists")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("store request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func refFrom(r *http.Request) session.Ref {
	return session.Ref{UserID: chi.URLParam(r, "userID"), SessionID: chi.URLParam(r, "sessionID")}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
