// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat transcripts, individual messages, and the catalog of
// completion models the hosted service exposes.
//
// # Key Types
//
//   - Conversation: append-only transcript for a chat session
//   - Message: single message with role, content, and timing statistics
//   - ModelInfo: catalog entry for a completion model (ID, context length)
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
// Create a new conversation and add an exchange:
//
//	conv := model.NewConversation()
//	conv.AddUserMessage("Hello!")
//	msg := conv.AddAssistantMessage()
//	msg.AppendDelta("Hi there.")
//	conv.FinalizeLast(nil)
//
// Look up a model's context window:
//
//	info := model.GetModelInfo("gpt-4o-mini")
//	fmt.Printf("Model: %s, context: %d tokens\n", info.Name, info.ContextLength)
package model
