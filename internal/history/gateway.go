// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/halcyonlabs/halcyon-tui/internal/auth"
)

// ===== CONSTANTS =====

const (
	csrfHeader = "X-CSRF-Token"

	savePath    = "/save"
	eventsPath  = "/events"
	refreshPath = "/refresh-token"
	csrfPath    = "/csrf-token"

	requestTimeout = 30 * time.Second

	maxErrorBody = 4 << 10
)

// ===== GATEWAY =====

// Gateway is the client for the record-keeping backend. It owns the
// session cookie jar, the anti-forgery token cache, and the renewal
// policy that recovers from expired credentials.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	cache      *auth.CredentialCache
	policy     *auth.RefreshPolicy
}

// NewGateway creates a Gateway for the backend at baseURL. The returned
// client keeps session cookies across requests and fetches anti-forgery
// tokens on demand.
func NewGateway(baseURL string) *Gateway {
	jar, _ := cookiejar.New(nil)
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Jar:     jar,
		},
	}
	g.cache = auth.NewCredentialCache(g.fetchCSRFToken)
	g.policy = auth.NewRefreshPolicy(g.cache, g.refreshSession)
	return g
}

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// attached if the client does not already have one.
func (g *Gateway) WithHTTPClient(c *http.Client) *Gateway {
	if c.Jar == nil {
		c.Jar, _ = cookiejar.New(nil)
	}
	g.httpClient = c
	return g
}

// Save persists a completed exchange and returns its durable event ID.
// Expired credentials are renewed and the save retried once per failure
// class; a terminal failure is wrapped in ErrPersistenceFailed and the
// caller's in-memory copy of the exchange is untouched.
func (g *Gateway) Save(ctx context.Context, req PersistRequest) (SaveResult, error) {
	var result SaveResult
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		token, err := g.cache.GetToken(ctx)
		if err != nil {
			return err
		}
		return g.postJSON(ctx, savePath, token, req, &result)
	})
	if err != nil {
		return SaveResult{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return result, nil
}

// Rate attaches a quality rating to a previously saved event. A rating
// of RatingCleared removes any prior rating. Failures are wrapped in
// ErrRatingFailed and never affect the saved event.
func (g *Gateway) Rate(ctx context.Context, eventID string, rating int) error {
	if !ValidRating(rating) {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	if eventID == "" {
		return fmt.Errorf("%w: empty event id", ErrRatingFailed)
	}
	path := eventsPath + "/" + eventID + "/rating"
	body := map[string]int{"rating": rating}
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		token, err := g.cache.GetToken(ctx)
		if err != nil {
			return err
		}
		return g.patchJSON(ctx, path, token, body)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRatingFailed, err)
	}
	return nil
}

// Events lists saved exchanges, newest first. An expired session is
// renewed and the listing retried once, same as Save and Rate; a fresh
// client with no session cookie yet goes through the same path.
func (g *Gateway) Events(ctx context.Context) ([]Event, error) {
	var events []Event
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+eventsPath, nil)
		if err != nil {
			return err
		}
		resp, err := g.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errorFromBody(resp)
		}
		events = nil
		if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
			return fmt.Errorf("decoding events: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ===== REQUEST PLUMBING =====

func (g *Gateway) postJSON(ctx context.Context, path, token string, in, out any) error {
	return g.sendJSON(ctx, http.MethodPost, path, token, in, out)
}

func (g *Gateway) patchJSON(ctx context.Context, path, token string, in any) error {
	return g.sendJSON(ctx, http.MethodPatch, path, token, in, nil)
}

func (g *Gateway) sendJSON(ctx context.Context, method, path, token string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrfHeader, token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errorFromBody(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// fetchCSRFToken retrieves a fresh anti-forgery token from the backend.
// It is installed as the CredentialCache fetcher, which deduplicates
// concurrent callers.
func (g *Gateway) fetchCSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+csrfPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errorFromBody(resp)
	}
	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if body.CSRFToken == "" {
		return "", fmt.Errorf("backend returned empty anti-forgery token")
	}
	return body.CSRFToken, nil
}

// refreshSession renews the session cookie and invalidates the cached
// anti-forgery token, since tokens are bound to the session.
func (g *Gateway) refreshSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+refreshPath, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errorFromBody(resp)
	}
	g.cache.Invalidate()
	return nil
}

// errorFromBody converts a non-2xx response into a BackendError,
// pulling the machine code and message out of the JSON body when
// the backend provided one.
func errorFromBody(resp *http.Response) error {
	be := &BackendError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		be.Code = body.Code
		if body.Message != "" {
			be.Message = body.Message
		} else {
			be.Message = body.Error
		}
	}
	if be.Message == "" {
		be.Message = http.StatusText(resp.StatusCode)
	}
	return be
}
