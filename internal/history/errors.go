// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"errors"
	"fmt"
)

// ===== SENTINEL ERRORS =====

var (
	// ErrPersistenceFailed wraps a terminal save failure. The in-memory
	// exchange is still intact when this is returned.
	ErrPersistenceFailed = errors.New("failed to save exchange")

	// ErrRatingFailed wraps a terminal rating failure. Callers treat it
	// as non-fatal: the saved event is unaffected.
	ErrRatingFailed = errors.New("failed to sync rating")

	// ErrInvalidRating is returned before any network call when the
	// rating value is outside 1-5 and not the clear sentinel.
	ErrInvalidRating = errors.New("rating must be 1-5 or -1 to clear")
)

// ===== BACKEND ERROR =====

// BackendError is a structured failure from the record-keeping backend.
// It carries the HTTP status and the machine-readable code from the
// response body, which drives credential-renewal classification.
type BackendError struct {
	Status  int
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// HTTPStatus returns the response status code.
func (e *BackendError) HTTPStatus() int { return e.Status }

// MachineCode returns the backend's machine-readable error code, if any.
func (e *BackendError) MachineCode() string { return e.Code }
