// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the backend.
	DefaultPort = 8787

	// MaxRequestBodySize caps request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxPromptLength bounds the prompt field of a save request.
	MaxPromptLength = 100000

	// MaxResponseLength bounds the response field of a save request.
	MaxResponseLength = 400000

	// DefaultListLimit is the page size for event listings.
	DefaultListLimit = 100

	// Version is the backend version.
	Version = "0.2.0"
)

// Error codes the client classifies on.
const (
	CodeSessionExpired = "SESSION_EXPIRED"
	CodeCSRFInvalid    = "CSRF_INVALID"
	CodeNotFound       = "NOT_FOUND"
	CodeBadRequest     = "BAD_REQUEST"
	CodeInternal       = "INTERNAL"
)

// ============================================================================
// CONFIG
// ============================================================================

// Config holds backend server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8787".
	Addr string

	// SessionTTL is the session cookie lifetime.
	SessionTTL time.Duration

	// RatePerSecond and RateBurst configure per-IP rate limiting.
	// Zero values use the defaults.
	RatePerSecond float64
	RateBurst     int

	// Logger receives request logs. Defaults to stderr.
	Logger *log.Logger
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the record-keeping backend.
type Server struct {
	cfg      Config
	store    *storage.Store
	sessions *SessionStore
	logger   *log.Logger
	httpSrv  *http.Server
}

// New creates a Server over the given event store.
func New(cfg Config, store *storage.Store) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8787"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		sessions: NewSessionStore(cfg.SessionTTL),
		logger:   logger,
	}

	limiter := DefaultRateLimiter()
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RatePerSecond) * 2
		}
		limiter = NewRateLimiter(cfg.RatePerSecond, burst)
	}

	outer := Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(logger),
		RateLimitMiddleware(limiter),
		BodyLimitMiddleware(MaxRequestBodySize),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /csrf-token", s.handleCSRFToken)
	mux.HandleFunc("POST /refresh-token", s.handleRefreshToken)
	mux.Handle("POST /save", s.requireSession(http.HandlerFunc(s.handleSave)))
	mux.Handle("PATCH /events/{id}/rating", s.requireSession(http.HandlerFunc(s.handleRating)))
	mux.Handle("GET /events", s.requireAuthenticated(http.HandlerFunc(s.handleListEvents)))
	mux.Handle("GET /events/{id}", s.requireAuthenticated(http.HandlerFunc(s.handleGetEvent)))

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      outer(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the full handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe runs the backend until the listener fails or Shutdown
// is called.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("record-keeping backend listening on %s", s.cfg.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// ============================================================================
// SESSION / CSRF MIDDLEWARE
// ============================================================================

// requireAuthenticated rejects requests without a live session.
func (s *Server) requireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" || !s.sessions.Valid(sessionID) {
			writeError(w, http.StatusUnauthorized, CodeSessionExpired, "session missing or expired")
			return
		}
		s.sessions.Touch(sessionID)
		next.ServeHTTP(w, r)
	})
}

// requireSession enforces both the session cookie and the anti-forgery
// token on state-changing requests. Expiry wins over a stale token: the
// client renews the session first, then refetches the token.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" || !s.sessions.Valid(sessionID) {
			writeError(w, http.StatusUnauthorized, CodeSessionExpired, "session missing or expired")
			return
		}
		if !s.sessions.VerifyCSRF(sessionID, r.Header.Get("X-CSRF-Token")) {
			writeError(w, http.StatusForbidden, CodeCSRFInvalid, "anti-forgery token missing or stale")
			return
		}
		s.sessions.Touch(sessionID)
		next.ServeHTTP(w, r)
	})
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// handleCSRFToken issues an anti-forgery token, creating a session when
// the caller does not have a live one.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)

	var token string
	if sessionID != "" && s.sessions.Valid(sessionID) {
		token = s.sessions.RotateCSRF(sessionID)
	}
	if token == "" {
		var newID string
		newID, token = s.sessions.Issue()
		http.SetCookie(w, sessionCookie(newID, s.sessions.ttl))
	}

	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// handleRefreshToken renews the session. The old session and its
// anti-forgery token are invalidated; the client must fetch a new token
// before its next state-changing request.
func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	oldID := sessionIDFromRequest(r)
	newID, _ := s.sessions.Refresh(oldID)
	http.SetCookie(w, sessionCookie(newID, s.sessions.ttl))
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req history.PersistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "malformed JSON body")
		return
	}
	if err := validateSave(req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	event, err := s.store.SaveEvent(r.Context(), req)
	if err != nil {
		s.logger.Printf("SAVE_FAILED | model=%s err=%v", req.Model, err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "could not persist event")
		return
	}

	writeJSON(w, http.StatusOK, history.SaveResult{EventID: event.ID})
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	var body struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "malformed JSON body")
		return
	}

	err := s.store.SetRating(r.Context(), eventID, body.Rating)
	switch {
	case errors.Is(err, storage.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "no such event")
	case err != nil:
		s.logger.Printf("RATING_FAILED | event=%s err=%v", eventID, err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "could not update rating")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context(), DefaultListLimit)
	if err != nil {
		s.logger.Printf("LIST_FAILED | err=%v", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "could not list events")
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	event, err := s.store.GetEvent(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, CodeNotFound, "event not found")
			return
		}
		s.logger.Printf("GET_FAILED | id=%s err=%v", id, err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "could not load event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ============================================================================
// VALIDATION
// ============================================================================

func validateSave(req history.PersistRequest) error {
	switch {
	case strings.TrimSpace(req.Model) == "":
		return errors.New("model is required")
	case req.Prompt == "":
		return errors.New("prompt is required")
	case req.Response == "":
		return errors.New("response is required")
	case len(req.Prompt) > MaxPromptLength:
		return errors.New("prompt too long")
	case len(req.Response) > MaxResponseLength:
		return errors.New("response too long")
	case req.ResponseTimeSeconds < 0:
		return errors.New("response time must be non-negative")
	}
	return nil
}

// ============================================================================
// RESPONSE HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the machine-readable error body the client's
// credential classification depends on.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
