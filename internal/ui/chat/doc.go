// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the interactive conversation view for halcyon.
//
// The package is organized as a single Bubble Tea model plus supporting
// pieces:
//
//   - model.go: the Model struct, construction, and Update dispatch
//   - update.go: key handling, stream lifecycle, save and rating commands
//   - commands.go: slash command parsing and execution
//   - view.go: all rendering (transcript, input, status bar, toasts)
//   - streaming.go: token batching for flicker-free streaming
//   - keys.go: keyboard bindings
//   - messages.go: Bubble Tea message types
//
// Streaming runs in a command goroutine that feeds a StreamingBuffer;
// the Update loop drains that buffer on a 30fps tick so rendering cost
// stays constant regardless of token rate. Cancellation, completion,
// and failure all funnel through a single StreamDoneMsg so the save
// decision is made in exactly one place.
package chat
