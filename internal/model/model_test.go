// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
	"testing"
)

// =============================================================================
// MODEL CATALOG TESTS
// =============================================================================

func TestModels_Catalog(t *testing.T) {
	essentialModels := []string{"gpt-4o", "gpt-4o-mini", "claude-sonnet"}

	for _, id := range essentialModels {
		if _, ok := Models[id]; !ok {
			t.Errorf("Essential model %q missing from catalog", id)
		}
	}
}

func TestModels_HaveRequiredFields(t *testing.T) {
	for id, model := range Models {
		t.Run(id, func(t *testing.T) {
			if model.ID == "" {
				t.Error("Model.ID should not be empty")
			}
			if model.Name == "" {
				t.Error("Model.Name should not be empty")
			}
			if model.Provider == "" {
				t.Error("Model.Provider should not be empty")
			}
			if model.ContextLength <= 0 {
				t.Error("Model.ContextLength should be positive")
			}
		})
	}
}

// =============================================================================
// LOOKUP TESTS
// =============================================================================

func TestGetModelInfo(t *testing.T) {
	model, ok := GetModelInfo("claude-sonnet")
	if !ok {
		t.Error("GetModelInfo(claude-sonnet) should return true")
	}
	if model.Name != "Claude 3.5 Sonnet" {
		t.Errorf("GetModelInfo(claude-sonnet).Name = %q, want 'Claude 3.5 Sonnet'", model.Name)
	}

	model, ok = GetModelInfo("claude-3-5-sonnet-20241022")
	if !ok {
		t.Error("GetModelInfo should find model by API ID")
	}
	if model.Provider != "Anthropic" {
		t.Error("Found model should be Anthropic")
	}

	_, ok = GetModelInfo("nonexistent-model")
	if ok {
		t.Error("GetModelInfo(nonexistent-model) should return false")
	}
}

func TestContextLengthFor(t *testing.T) {
	if got := ContextLengthFor("gpt-4o"); got != 128000 {
		t.Errorf("ContextLengthFor(gpt-4o) = %d, want 128000", got)
	}
	if got := ContextLengthFor("nonexistent-model"); got != DefaultContextLength {
		t.Errorf("ContextLengthFor(unknown) = %d, want %d", got, DefaultContextLength)
	}
}

func TestGetModelsByProvider(t *testing.T) {
	openaiModels := GetModelsByProvider("OpenAI")
	if len(openaiModels) == 0 {
		t.Error("Should have OpenAI models")
	}
	for _, m := range openaiModels {
		if m.Provider != "OpenAI" {
			t.Errorf("GetModelsByProvider(OpenAI) returned %s model", m.Provider)
		}
	}
}

func TestModelShortNames_Sorted(t *testing.T) {
	names := ModelShortNames()
	if len(names) != len(Models) {
		t.Errorf("got %d names, want %d", len(names), len(Models))
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_AppendOnlyTranscript(t *testing.T) {
	conv := NewConversationWithModel("gpt-4o-mini")

	conv.AddUserMessage("first question")
	asst := conv.AddAssistantMessage()
	asst.AppendDelta("first ")
	asst.AppendDelta("answer")
	conv.FinalizeLast(nil)
	conv.AddUserMessage("second question")

	msgs := conv.ToChatMessages()
	wantRoles := []string{"user", "assistant", "user"}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(wantRoles))
	}
	for i, role := range wantRoles {
		if msgs[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, msgs[i].Role, role)
		}
	}
	if msgs[1].Content != "first answer" {
		t.Errorf("assistant content = %q, want %q", msgs[1].Content, "first answer")
	}
}

func TestConversation_SystemPromptLeads(t *testing.T) {
	conv := NewConversation()
	conv.SystemPrompt = "be terse"
	conv.AddUserMessage("hello")

	msgs := conv.ToChatMessages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "be terse" {
		t.Errorf("first message = %+v, want system prompt", msgs[0])
	}
}

func TestConversation_EmptyMessagesSkipped(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("hello")
	conv.AddAssistantMessage() // streaming, no content yet

	msgs := conv.ToChatMessages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (empty assistant skipped)", len(msgs))
	}
}

func TestConversation_ClearHistory(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("hello")
	conv.AddUserMessage("world")

	conv.ClearHistory()
	if !conv.IsEmpty() {
		t.Error("conversation should be empty after clear")
	}
	if conv.TokensUsed != 0 {
		t.Errorf("TokensUsed = %d after clear, want 0", conv.TokensUsed)
	}
	if len(conv.ToChatMessages()) != 0 {
		t.Error("cleared transcript should produce no request messages")
	}
}

func TestConversation_TokenTracking(t *testing.T) {
	conv := NewConversationWithModel("mistral-large")
	if conv.MaxTokens != 32768 {
		t.Errorf("MaxTokens = %d, want 32768 from catalog", conv.MaxTokens)
	}

	conv.AddUserMessage(strings.Repeat("word ", 100))
	if conv.TokensUsed == 0 {
		t.Error("TokensUsed should grow with the transcript")
	}
	if conv.GetContextPercent() <= 0 {
		t.Error("context percent should be positive")
	}
}

func TestConversation_TitleFromFirstUserMessage(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("How do goroutines work?")
	if conv.GetTitle() != "How do goroutines work?" {
		t.Errorf("title = %q", conv.GetTitle())
	}
}

func TestConversation_PruneKeepsSystemMessages(t *testing.T) {
	conv := NewConversation()
	conv.AddSystemMessage("rules")
	for i := 0; i <= MaxMessages; i++ {
		conv.AddUserMessage("msg")
	}
	if conv.Messages[0].Role != RoleSystem {
		t.Error("system message should survive pruning")
	}
	if conv.MessageCount() > MaxMessages+1 {
		t.Errorf("history not pruned: %d messages", conv.MessageCount())
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_StreamingLifecycle(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendDelta("hel")
	msg.AppendDelta("lo")

	if got := msg.GetDisplayContent(); got != "hello" {
		t.Errorf("display content = %q during stream", got)
	}

	msg.FinalizeStream(nil)
	if msg.IsStreaming {
		t.Error("message still streaming after finalize")
	}
	if msg.Content != "hello" {
		t.Errorf("content = %q after finalize", msg.Content)
	}

	// Deltas after finalize are ignored
	msg.AppendDelta("!")
	if msg.Content != "hello" {
		t.Error("delta appended after finalize")
	}
}

func TestMessage_SavedLinkage(t *testing.T) {
	msg := NewAssistantMessage()
	if msg.IsSaved() {
		t.Error("fresh message should not be saved")
	}
	msg.EventID = "evt-1"
	if !msg.IsSaved() {
		t.Error("message with event ID should report saved")
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("héllo wörld, this is a long message")
	got := msg.Preview(10)
	if len([]rune(got)) > 10 {
		t.Errorf("preview too long: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("preview %q should be truncated with ellipsis", got)
	}
}
