// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package budget estimates token counts and tracks the completion budget
// against a model's context window.
//
// The estimator is a deterministic heuristic (roughly four characters per
// token, the approximation published for the GPT/Claude model families).
// It is cheap enough to run on every keystroke, which the input view does
// to keep the context meter live. Exact counts come back from the service
// in the usage block of a finished completion; the heuristic only guards
// submission.
package budget
