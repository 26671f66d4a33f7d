// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Bubble Tea message types used by the chat interface.

package chat

import (
	"time"

	"github.com/halcyonlabs/halcyon-tui/internal/history"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamTickMsg drives batched rendering of buffered deltas at 30fps.
type StreamTickMsg struct {
	Time time.Time
}

// StreamDoneMsg signals that a stream ended, for any reason.
// Err is nil on clean completion, context.Canceled when the user
// pressed Esc, and a transport or API error otherwise.
type StreamDoneMsg struct {
	SessionID string
	MessageID string
	Err       error
}

// =============================================================================
// PERSISTENCE MESSAGES
// =============================================================================

// SaveResultMsg reports the outcome of persisting a completed exchange.
type SaveResultMsg struct {
	MessageID string
	Result    history.SaveResult
	Err       error
}

// RateResultMsg reports the outcome of syncing a rating.
type RateResultMsg struct {
	MessageID string
	Rating    int
	Err       error
}

// EventsResultMsg delivers the recent saved events for /history.
type EventsResultMsg struct {
	Events []history.Event
	Err    error
}

// =============================================================================
// UI MESSAGES
// =============================================================================

// ErrorMsg carries a blocking error for display.
type ErrorMsg struct {
	Title   string
	Message string
}

// ErrorDismissMsg clears the blocking error display.
type ErrorDismissMsg struct{}

// ClearConversationMsg clears the transcript.
type ClearConversationMsg struct{}
