// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the record-keeping backend HTTP API.
//
// The backend stores completed chat exchanges as events and serves the
// credential endpoints the client's renewal protocol depends on.
//
// # Endpoints
//
//   - GET   /csrf-token           - Issue an anti-forgery token (and a session if absent)
//   - POST  /refresh-token        - Renew the session cookie
//   - POST  /save                 - Persist a completed exchange, returns its event ID
//   - PATCH /events/{id}/rating   - Attach or clear a rating
//   - GET   /events               - List saved events, newest first
//   - GET   /health               - Health check
//
// # Error Contract
//
// Failures carry a JSON body with a machine-readable code. The two codes
// the client acts on:
//
//   - 401 SESSION_EXPIRED - the session cookie is missing or lapsed
//   - 403 CSRF_INVALID    - the anti-forgery token does not match the session
//
// # Security Features
//
//   - HttpOnly session cookies with sliding expiry
//   - Anti-forgery tokens bound to the session, rotated on refresh
//   - Per-IP token bucket rate limiting
//   - Request body size caps
//   - Panic recovery and request logging
//
// # Usage
//
//	srv := server.New(server.Config{Addr: ":8787"}, store)
//	if err := srv.ListenAndServe(); err != nil {
//		log.Fatal(err)
//	}
package server
