// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history records finished exchanges with the record-keeping
// backend.
//
// The Gateway persists a completed exchange exactly once and returns its
// durable event ID; Rate attaches a quality rating to a previously saved
// event. Both operations attach the anti-forgery token to the request and
// recover transparently from one expired credential of each kind via the
// auth package's refresh policy.
package history
