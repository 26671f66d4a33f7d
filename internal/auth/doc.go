// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth manages the two expiring credentials every state-changing
// backend call depends on: the session cookie and the anti-forgery token.
//
// Both are modeled as a retry strategy. A failed request is classified
// (session expired, anti-forgery invalid, or other), the matching
// credential is renewed exactly once, and the request is retried exactly
// once per classification. Concurrent callers hitting the same expired
// credential share a single in-flight renewal.
package auth
