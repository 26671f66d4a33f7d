// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package budget

import "math"

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// charsPerToken is the heuristic ratio of characters to tokens.
const charsPerToken = 4

// MessageOverheadTokens is the per-message framing overhead added by chat
// completion APIs (role markers and separators).
const MessageOverheadTokens = 4

// DefaultSafetyFactor inflates prompt estimates before computing the
// remaining completion budget, absorbing the error of the heuristic.
const DefaultSafetyFactor = 1.2

// Estimator computes deterministic token estimates for prompt text.
//
// The zero value is ready to use. Estimates are stable for identical input
// and monotonic in input length, so the UI can recompute them on every
// keystroke without flicker.
type Estimator struct{}

// NewEstimator returns an Estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns the estimated token count for text. Never negative;
// empty text estimates to zero.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessage returns the estimate for one chat message including the
// per-message framing overhead.
func (e *Estimator) EstimateMessage(content string) int {
	return e.Estimate(content) + MessageOverheadTokens
}

// =============================================================================
// COMPLETION BUDGET
// =============================================================================

// ComputeAvailable returns the number of tokens available for a completion
// given the model's context ceiling, the estimated prompt token count, and
// a safety factor applied to the estimate.
//
// The result is clamped at zero: an oversized prompt yields 0, never a
// negative number and never a panic. Whether to block submission on a zero
// budget is the caller's decision.
func ComputeAvailable(budgetCeiling, promptTokens int, safetyFactor float64) int {
	if budgetCeiling <= 0 {
		return 0
	}
	if safetyFactor < 1 {
		safetyFactor = 1
	}
	reserved := int(math.Ceil(float64(promptTokens) * safetyFactor))
	available := budgetCeiling - reserved
	if available < 0 {
		return 0
	}
	return available
}

// Budget is a snapshot of the token budget for one pending request.
type Budget struct {
	// ModelContextLength is the context window of the selected model.
	ModelContextLength int

	// ReservedForPrompt is the safety-adjusted prompt estimate.
	ReservedForPrompt int

	// AvailableForCompletion is what remains for the model's answer,
	// clamped at zero.
	AvailableForCompletion int
}

// Compute builds a Budget for a prompt estimate against a context window.
// The budget is derived fresh on every call: switching models changes the
// ceiling, so callers must not cache a Budget across model changes.
func Compute(contextLength, promptTokens int, safetyFactor float64) Budget {
	if safetyFactor < 1 {
		safetyFactor = 1
	}
	reserved := int(math.Ceil(float64(promptTokens) * safetyFactor))
	return Budget{
		ModelContextLength:     contextLength,
		ReservedForPrompt:      reserved,
		AvailableForCompletion: ComputeAvailable(contextLength, promptTokens, safetyFactor),
	}
}

// Exhausted reports whether no completion tokens remain.
func (b Budget) Exhausted() bool {
	return b.AvailableForCompletion == 0
}

// UsedPercent returns the share of the context window consumed by the
// reserved prompt, as a percentage capped at 100.
func (b Budget) UsedPercent() float64 {
	if b.ModelContextLength <= 0 {
		return 100
	}
	pct := float64(b.ReservedForPrompt) / float64(b.ModelContextLength) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
