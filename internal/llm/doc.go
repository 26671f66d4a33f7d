// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm speaks to the hosted completion service.
//
// The client opens streaming chat completions; the Decoder reassembles the
// chunked event stream into ordered content deltas regardless of where the
// transport splits the bytes. Consumption is pull-based: callers read one
// delta at a time from a Stream, which checks for cancellation before every
// chunk read and releases the connection exactly once.
package llm
