// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "halcyon_session"

	// DefaultSessionTTL is how long a session lives without a refresh.
	DefaultSessionTTL = 30 * time.Minute

	// sessionSweepInterval is how often expired sessions are evicted.
	sessionSweepInterval = 5 * time.Minute
)

// ============================================================================
// SESSION STORE
// ============================================================================

// sessionRecord is the server-side state for one client session. The
// anti-forgery token is bound to the session and rotates with it.
type sessionRecord struct {
	csrfToken string
	expiresAt time.Time
}

// SessionStore issues and validates session cookies and their bound
// anti-forgery tokens. All methods are safe for concurrent use.
type SessionStore struct {
	mu        sync.Mutex
	sessions  map[string]*sessionRecord
	ttl       time.Duration
	lastSweep time.Time
}

// NewSessionStore creates a store with the given session lifetime.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions:  make(map[string]*sessionRecord),
		ttl:       ttl,
		lastSweep: time.Now(),
	}
}

// Issue creates a new session with a fresh anti-forgery token and returns
// the session ID and token.
func (s *SessionStore) Issue() (sessionID, csrfToken string) {
	sessionID = randomToken()
	csrfToken = randomToken()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.sessions[sessionID] = &sessionRecord{
		csrfToken: csrfToken,
		expiresAt: time.Now().Add(s.ttl),
	}
	return sessionID, csrfToken
}

// Valid reports whether the session exists and has not expired.
func (s *SessionStore) Valid(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	return ok && time.Now().Before(rec.expiresAt)
}

// Refresh replaces the session with a new one, invalidating the old
// session ID and its anti-forgery token. Refresh succeeds even for an
// expired or unknown session: renewal is how a client recovers.
func (s *SessionStore) Refresh(oldSessionID string) (sessionID, csrfToken string) {
	s.mu.Lock()
	delete(s.sessions, oldSessionID)
	s.mu.Unlock()
	return s.Issue()
}

// CSRFToken returns the anti-forgery token bound to the session, or ""
// if the session is invalid.
func (s *SessionStore) CSRFToken(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok || time.Now().After(rec.expiresAt) {
		return ""
	}
	return rec.csrfToken
}

// RotateCSRF replaces the session's anti-forgery token and returns the
// new one, or "" if the session is invalid.
func (s *SessionStore) RotateCSRF(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok || time.Now().After(rec.expiresAt) {
		return ""
	}
	rec.csrfToken = randomToken()
	return rec.csrfToken
}

// VerifyCSRF checks the presented token against the session's in constant
// time.
func (s *SessionStore) VerifyCSRF(sessionID, presented string) bool {
	expected := s.CSRFToken(sessionID)
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// Touch extends the session's expiry. Called on authenticated activity
// so active clients do not lapse mid-use.
func (s *SessionStore) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[sessionID]; ok && time.Now().Before(rec.expiresAt) {
		rec.expiresAt = time.Now().Add(s.ttl)
	}
}

// sweepLocked evicts expired sessions. Caller holds the mutex.
func (s *SessionStore) sweepLocked() {
	now := time.Now()
	if now.Sub(s.lastSweep) < sessionSweepInterval {
		return
	}
	s.lastSweep = now
	for id, rec := range s.sessions {
		if now.After(rec.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

// ============================================================================
// HELPERS
// ============================================================================

// randomToken returns a 128-bit hex token.
func randomToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// sessionCookie builds the session cookie for the response.
func sessionCookie(sessionID string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// sessionIDFromRequest extracts the session cookie value, or "".
func sessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
