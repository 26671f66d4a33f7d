// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the halcyon client:
// crash-safe file writes used by the configuration layer, and
// width-aware string truncation for the terminal UI.
package util
