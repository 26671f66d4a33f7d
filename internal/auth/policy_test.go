// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// backendError is a minimal StatusCodeError for tests.
type backendError struct {
	status int
	code   string
}

func (e *backendError) Error() string     { return e.code }
func (e *backendError) HTTPStatus() int   { return e.status }
func (e *backendError) MachineCode() string { return e.code }

var (
	errSessionExpired = &backendError{status: http.StatusUnauthorized, code: "SESSION_EXPIRED"}
	errCSRFInvalid    = &backendError{status: http.StatusForbidden, code: CSRFErrorCode}
	errPlainForbidden = &backendError{status: http.StatusForbidden, code: "NOT_ALLOWED"}
)

func newTestPolicy(refreshErr error) (*RefreshPolicy, *atomic.Int32, *atomic.Int32) {
	var refreshes, fetches atomic.Int32
	cache := NewCredentialCache(func(ctx context.Context) (string, error) {
		fetches.Add(1)
		return "csrf-token", nil
	})
	policy := NewRefreshPolicy(cache, func(ctx context.Context) error {
		refreshes.Add(1)
		return refreshErr
	})
	return policy, &refreshes, &fetches
}

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"401 is session expired", errSessionExpired, ClassSessionExpired},
		{"403 with CSRF code", errCSRFInvalid, ClassAntiForgery},
		{"plain 403 is other", errPlainForbidden, ClassOther},
		{"wrapped error still classified", errors.Join(errors.New("save failed"), errCSRFInvalid), ClassAntiForgery},
		{"unclassified error", errors.New("boom"), ClassOther},
		{"nil-ish transport error", context.DeadlineExceeded, ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

// =============================================================================
// RETRY PROTOCOL TESTS
// =============================================================================

// TestDo_SessionExpiredRenewedOnce: first attempt fails 401, renewal
// succeeds, retry succeeds. The attempt runs exactly twice.
func TestDo_SessionExpiredRenewedOnce(t *testing.T) {
	policy, refreshes, _ := newTestPolicy(nil)

	var attempts atomic.Int32
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		if attempts.Add(1) == 1 {
			return errSessionExpired
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, int32(2), attempts.Load())
	require.Equal(t, int32(1), refreshes.Load())
}

// TestDo_RecurringClassificationIsTerminal: the same classification after
// its one retry surfaces the error. The attempt runs exactly twice - no
// infinite loop.
func TestDo_RecurringClassificationIsTerminal(t *testing.T) {
	policy, refreshes, _ := newTestPolicy(nil)

	var attempts atomic.Int32
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts.Add(1)
		return errSessionExpired
	})

	require.ErrorIs(t, err, error(errSessionExpired))
	require.Equal(t, int32(2), attempts.Load())
	require.Equal(t, int32(1), refreshes.Load())
}

func TestDo_AntiForgeryInvalidatesAndRefetches(t *testing.T) {
	policy, refreshes, fetches := newTestPolicy(nil)

	var attempts atomic.Int32
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		if attempts.Add(1) == 1 {
			return errCSRFInvalid
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, int32(2), attempts.Load())
	require.Equal(t, int32(0), refreshes.Load(), "anti-forgery failure must not refresh the session")
	require.Equal(t, int32(1), fetches.Load())
}

// TestDo_DistinctClassificationsEachGetARetry: a 401 retry that then hits
// a CSRF failure still gets the anti-forgery renewal.
func TestDo_DistinctClassificationsEachGetARetry(t *testing.T) {
	policy, refreshes, fetches := newTestPolicy(nil)

	var attempts atomic.Int32
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		switch attempts.Add(1) {
		case 1:
			return errSessionExpired
		case 2:
			return errCSRFInvalid
		default:
			return nil
		}
	})

	require.NoError(t, err)
	require.Equal(t, int32(3), attempts.Load())
	require.Equal(t, int32(1), refreshes.Load())
	require.Equal(t, int32(1), fetches.Load())
}

func TestDo_OtherErrorsNotRetried(t *testing.T) {
	policy, refreshes, _ := newTestPolicy(nil)

	boom := errors.New("boom")
	var attempts atomic.Int32
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts.Add(1)
		return boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, int32(1), attempts.Load())
	require.Equal(t, int32(0), refreshes.Load())
}

// TestDo_RenewalFailureIsTerminal: when the refresh call itself fails the
// caller gets ErrSessionLost, not another attempt.
func TestDo_RenewalFailureIsTerminal(t *testing.T) {
	policy, _, _ := newTestPolicy(errors.New("refresh endpoint down"))

	var attempts atomic.Int32
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts.Add(1)
		return errSessionExpired
	})

	require.ErrorIs(t, err, ErrSessionLost)
	require.Equal(t, int32(1), attempts.Load())
}

// =============================================================================
// SHARED RENEWAL TESTS
// =============================================================================

// TestRefreshSession_SharedInFlight: concurrent Do calls that all hit the
// same expired session trigger a single refresh call.
func TestRefreshSession_SharedInFlight(t *testing.T) {
	var refreshes atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	cache := NewCredentialCache(func(ctx context.Context) (string, error) {
		return "csrf-token", nil
	})
	policy := NewRefreshPolicy(cache, func(ctx context.Context) error {
		refreshes.Add(1)
		once.Do(func() { close(started) })
		<-release
		return nil
	})

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	var failed atomic.Int32

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = policy.Do(context.Background(), func(ctx context.Context) error {
				// Fail once per caller, then succeed.
				if failed.Add(1) <= callers {
					return errSessionExpired
				}
				return nil
			})
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), refreshes.Load(), "expected one shared refresh")
}
