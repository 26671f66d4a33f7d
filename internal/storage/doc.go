// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable event store for the record-keeping
// backend.
//
// Events are completed chat exchanges: prompt, response, model, timing,
// and optional token usage. The store assigns each saved event a unique
// ID, which is the handle for later rating updates.
//
// The store is backed by SQLite via the pure-Go driver, so the daemon
// builds without cgo. WAL mode keeps concurrent reads cheap while writes
// are serialized by the database.
//
// # Usage
//
//	store, err := storage.Open(filepath.Join(dataDir, "events.db"))
//	if err != nil { ... }
//	defer store.Close()
//
//	event, err := store.SaveEvent(ctx, req)
//	err = store.SetRating(ctx, event.ID, 5)
package storage
