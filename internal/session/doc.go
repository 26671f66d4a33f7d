// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the lifecycle of one streaming exchange.
//
// A Session moves through a small state machine: Streaming on start,
// then exactly one of Completed, Cancelled, or Failed. Cancelled and
// Completed are mutually exclusive: once a session is cancelled no
// later event can mark it completed, and only completed sessions are
// eligible for persistence, at most once.
//
// The Controller serializes sessions. At most one is active; beginning
// a new one cancels whatever was running, and cancellation is safe to
// invoke from the UI event loop while the consumer goroutine is mid-read.
//
// # Usage
//
//	ctrl := session.NewController()
//	sess, ctx := ctrl.Begin(context.Background())
//	err := session.Consume(ctx, sess, stream, func(delta string) {
//	    // render partial output
//	})
//	ctrl.Finish(sess)
package session
