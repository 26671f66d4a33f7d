// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import "time"

// UsageMetrics is the token accounting attached to a saved exchange.
type UsageMetrics struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// PersistRequest is one finished exchange headed for durable storage.
// It is created once per completed stream session and consumed by
// Gateway.Save.
type PersistRequest struct {
	Model               string        `json:"model"`
	Prompt              string        `json:"prompt"`
	Response            string        `json:"response"`
	ResponseTimeSeconds float64       `json:"response_time_seconds"`
	TemplateID          string        `json:"template_id,omitempty"`
	Tags                []string      `json:"tags,omitempty"`
	GenerationID        string        `json:"generation_id,omitempty"`
	Usage               *UsageMetrics `json:"usage,omitempty"`
}

// SaveResult is the durable identity of a persisted exchange. Holding one
// is the only way to rate the exchange later.
type SaveResult struct {
	EventID string `json:"event_id"`
}

// Event is a stored exchange as the backend returns it.
type Event struct {
	ID                  string        `json:"id"`
	Model               string        `json:"model"`
	Prompt              string        `json:"prompt"`
	Response            string        `json:"response"`
	ResponseTimeSeconds float64       `json:"response_time_seconds"`
	TemplateID          string        `json:"template_id,omitempty"`
	Tags                []string      `json:"tags,omitempty"`
	GenerationID        string        `json:"generation_id,omitempty"`
	Usage               *UsageMetrics `json:"usage,omitempty"`
	Rating              int           `json:"rating,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
}

// RatingCleared is the sentinel rating value that removes a prior rating.
const RatingCleared = -1

// ValidRating reports whether r is RatingCleared or in the 1-5 range.
func ValidRating(r int) bool {
	return r == RatingCleared || (r >= 1 && r <= 5)
}
