// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// =============================================================================
// FAILURE CLASSIFICATION
// =============================================================================

// Classification buckets a failed backend request by which credential, if
// any, caused it.
type Classification int

const (
	// ClassOther covers failures no credential renewal can fix.
	ClassOther Classification = iota

	// ClassSessionExpired is a 401: the session credential lapsed.
	ClassSessionExpired

	// ClassAntiForgery is a 403 carrying the anti-forgery error code,
	// distinct from a generic authorization failure.
	ClassAntiForgery
)

// String returns the classification name for logs.
func (c Classification) String() string {
	switch c {
	case ClassSessionExpired:
		return "session-expired"
	case ClassAntiForgery:
		return "anti-forgery-invalid"
	default:
		return "other"
	}
}

// CSRFErrorCode is the machine-readable code the backend attaches to
// anti-forgery failures.
const CSRFErrorCode = "CSRF_INVALID"

// StatusCodeError is implemented by backend errors that carry an HTTP
// status and an optional machine-readable code.
type StatusCodeError interface {
	error
	HTTPStatus() int
	MachineCode() string
}

// Classify maps an error to its credential classification.
func Classify(err error) Classification {
	var sce StatusCodeError
	if !errors.As(err, &sce) {
		return ClassOther
	}
	switch {
	case sce.HTTPStatus() == http.StatusUnauthorized:
		return ClassSessionExpired
	case sce.HTTPStatus() == http.StatusForbidden && sce.MachineCode() == CSRFErrorCode:
		return ClassAntiForgery
	default:
		return ClassOther
	}
}

// =============================================================================
// REFRESH POLICY
// =============================================================================

// ErrSessionLost is returned when credential renewal itself fails: the
// session cannot be recovered without the user signing in again.
var ErrSessionLost = errors.New("session expired and could not be renewed")

// SessionRefresher renews the session credential (cookie) at the backend.
type SessionRefresher func(ctx context.Context) error

// RefreshPolicy drives the bounded renew-and-retry protocol around backend
// requests.
//
// Each failure classification gets at most one renewal and one retry per
// Do call; a recurrence of the same classification after its retry is
// terminal. Session renewals in flight are shared by concurrent callers
// the same way anti-forgery fetches are.
type RefreshPolicy struct {
	cache   *CredentialCache
	refresh SessionRefresher

	mu       sync.Mutex
	inflight *inflightRefresh
}

type inflightRefresh struct {
	done chan struct{}
	err  error
}

// NewRefreshPolicy creates a policy over the shared credential cache and
// a session refresher.
func NewRefreshPolicy(cache *CredentialCache, refresh SessionRefresher) *RefreshPolicy {
	return &RefreshPolicy{cache: cache, refresh: refresh}
}

// Do runs attempt, renewing credentials and retrying on classified
// failures. The retry budget is one per classification: a request that
// fails with an expired session, succeeds renewal, then fails with an
// invalid anti-forgery token still gets the second renewal, but a repeat
// of either classification ends the call with the attempt's error.
func (p *RefreshPolicy) Do(ctx context.Context, attempt func(ctx context.Context) error) error {
	retried := make(map[Classification]bool, 2)

	for {
		err := attempt(ctx)
		if err == nil {
			return nil
		}

		class := Classify(err)
		if class == ClassOther || retried[class] {
			return err
		}
		retried[class] = true

		if renewErr := p.renew(ctx, class); renewErr != nil {
			return fmt.Errorf("%w: %v", ErrSessionLost, renewErr)
		}
	}
}

// renew performs the renewal appropriate to the classification.
func (p *RefreshPolicy) renew(ctx context.Context, class Classification) error {
	switch class {
	case ClassSessionExpired:
		return p.refreshSession(ctx)
	case ClassAntiForgery:
		// Drop the stale token; the next request fetches a fresh one.
		p.cache.Invalidate()
		_, err := p.cache.GetToken(ctx)
		return err
	default:
		return nil
	}
}

// refreshSession calls the session-refresh endpoint, sharing one in-flight
// renewal among concurrent callers.
func (p *RefreshPolicy) refreshSession(ctx context.Context) error {
	p.mu.Lock()
	if call := p.inflight; call != nil {
		p.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := &inflightRefresh{done: make(chan struct{})}
	p.inflight = call
	p.mu.Unlock()

	err := p.refresh(ctx)

	p.mu.Lock()
	p.inflight = nil
	p.mu.Unlock()

	call.err = err
	close(call.done)
	return err
}
