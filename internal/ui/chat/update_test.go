// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/halcyonlabs/halcyon-tui/internal/config"
	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/llm"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/session"
)

// newTestModel builds a chat model with persistence enabled against a
// gateway that is never actually called.
func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.Default()
	client := llm.NewClient("http://127.0.0.1:1", "test-key")
	gateway := history.NewGateway("http://127.0.0.1:1")
	m := New(cfg, client, gateway)
	m.width = 80
	m.height = 24
	return m
}

// beginStream primes the model as if a stream were in flight.
func beginStream(m *Model, prompt string) *session.Session {
	m.conversation.AddUserMessage(prompt)
	asst := m.conversation.AddAssistantMessage()
	m.state = StateStreaming
	m.streamingMsgID = asst.ID
	m.streamingStats = model.NewStatistics()
	m.buffer.Reset()

	sess := session.NewSession()
	sess.Start()
	m.streamSess = sess
	return sess
}

func TestHandleStreamDone_CompletedTriggersSaveOnce(t *testing.T) {
	m := newTestModel(t)
	sess := beginStream(&m, "hello")

	sess.AppendDelta("world")
	m.buffer.Write("world")
	sess.Complete()

	msgID := m.streamingMsgID
	updated, cmd := m.handleStreamDone(StreamDoneMsg{SessionID: sess.ID(), MessageID: msgID})
	m = updated.(Model)

	if cmd == nil {
		t.Error("completed stream with persistence enabled should produce a save command")
	}
	if !sess.Saved() {
		t.Error("session should be marked saved exactly once")
	}
	if m.state != StateReady {
		t.Errorf("state = %v, want StateReady", m.state)
	}

	last := m.conversation.GetLastAssistantMessage()
	if last == nil || last.Content != "world" {
		t.Fatalf("transcript should hold the full response, got %+v", last)
	}
	if last.IsStreaming {
		t.Error("message should be finalized")
	}

	// A duplicate done message for the finished stream is ignored.
	if _, cmd := m.handleStreamDone(StreamDoneMsg{SessionID: sess.ID(), MessageID: msgID}); cmd != nil {
		t.Error("stale StreamDoneMsg should not produce commands")
	}
}

func TestHandleStreamDone_CancelledKeepsPartialAndNeverSaves(t *testing.T) {
	m := newTestModel(t)
	sess := beginStream(&m, "hello")

	sess.AppendDelta("partial answer")
	m.buffer.Write("partial answer")
	sess.Cancel()

	updated, _ := m.handleStreamDone(StreamDoneMsg{SessionID: sess.ID(), MessageID: m.streamingMsgID})
	m = updated.(Model)

	last := m.conversation.GetLastAssistantMessage()
	if last == nil || last.Content != "partial answer" {
		t.Fatalf("partial content should stay in the transcript, got %+v", last)
	}
	if sess.Saved() {
		t.Error("a cancelled exchange must never be saved")
	}
	if sess.MarkSaved() {
		t.Error("MarkSaved must refuse a cancelled session")
	}
	if m.state != StateReady {
		t.Errorf("state = %v, want StateReady", m.state)
	}
	if !m.toasts.HasToasts() {
		t.Error("cancellation should surface a status toast")
	}
}

func TestHandleStreamDone_FailureDropsEmptyPlaceholder(t *testing.T) {
	m := newTestModel(t)
	sess := beginStream(&m, "hello")
	sess.Fail(errors.New("connection reset"))

	before := m.conversation.MessageCount()
	updated, _ := m.handleStreamDone(StreamDoneMsg{
		SessionID: sess.ID(),
		MessageID: m.streamingMsgID,
		Err:       errors.New("connection reset"),
	})
	m = updated.(Model)

	if m.conversation.MessageCount() != before-1 {
		t.Errorf("empty placeholder should be removed, count %d -> %d",
			before, m.conversation.MessageCount())
	}
	if !m.toasts.HasToasts() {
		t.Error("failure should surface an error toast")
	}
	if sess.Saved() {
		t.Error("a failed exchange must never be saved")
	}
}

func TestHandleStreamDone_FailureKeepsPartialContent(t *testing.T) {
	m := newTestModel(t)
	sess := beginStream(&m, "hello")

	sess.AppendDelta("half an ans")
	m.buffer.Write("half an ans")
	sess.Fail(errors.New("stream interrupted"))

	updated, _ := m.handleStreamDone(StreamDoneMsg{
		SessionID: sess.ID(),
		MessageID: m.streamingMsgID,
		Err:       errors.New("stream interrupted"),
	})
	m = updated.(Model)

	last := m.conversation.GetLastAssistantMessage()
	if last == nil || last.Content != "half an ans" {
		t.Fatalf("partial content from a failed stream should stay visible, got %+v", last)
	}
}

func TestHandleSaveResult_SetsEventID(t *testing.T) {
	m := newTestModel(t)
	m.conversation.AddUserMessage("q")
	asst := m.conversation.AddAssistantMessage()
	asst.FinalizeStream(nil)
	asst.Content = "a"

	updated, _ := m.handleSaveResult(SaveResultMsg{
		MessageID: asst.ID,
		Result:    history.SaveResult{EventID: "evt_123"},
	})
	m = updated.(Model)

	if got := m.conversation.GetMessageByID(asst.ID); got == nil || got.EventID != "evt_123" {
		t.Fatalf("message should carry the event ID, got %+v", got)
	}
	if !strings.Contains(m.statusMsg, "evt_123") {
		t.Errorf("status should mention the event, got %q", m.statusMsg)
	}
}

func TestHandleSaveResult_FailurePreservesTranscript(t *testing.T) {
	m := newTestModel(t)
	m.conversation.AddUserMessage("q")
	asst := m.conversation.AddAssistantMessage()
	asst.FinalizeStream(nil)
	asst.Content = "the answer"

	updated, _ := m.handleSaveResult(SaveResultMsg{
		MessageID: asst.ID,
		Err:       history.ErrPersistenceFailed,
	})
	m = updated.(Model)

	got := m.conversation.GetMessageByID(asst.ID)
	if got == nil || got.Content != "the answer" {
		t.Fatal("a failed save must not disturb the in-memory exchange")
	}
	if got.IsSaved() {
		t.Error("message should not be marked saved after a failed save")
	}
	if !m.toasts.HasToasts() {
		t.Error("failed save should surface a warning toast")
	}
}

func TestHandleRateResult_FailureIsNonFatal(t *testing.T) {
	m := newTestModel(t)
	m.conversation.AddUserMessage("q")
	asst := m.conversation.AddAssistantMessage()
	asst.FinalizeStream(nil)
	asst.EventID = "evt_9"

	updated, _ := m.handleRateResult(RateResultMsg{
		MessageID: asst.ID,
		Rating:    4,
		Err:       history.ErrRatingFailed,
	})
	m = updated.(Model)

	if got := m.conversation.GetMessageByID(asst.ID); got.Rating != 0 {
		t.Errorf("rating should not be applied locally on sync failure, got %d", got.Rating)
	}
	if m.state != StateReady {
		t.Error("a failed rating sync must not change the chat state")
	}
	if !m.toasts.HasToasts() {
		t.Error("failed rating sync should surface a toast")
	}
}

func TestHandleRateResult_SuccessAndClear(t *testing.T) {
	m := newTestModel(t)
	m.conversation.AddUserMessage("q")
	asst := m.conversation.AddAssistantMessage()
	asst.FinalizeStream(nil)
	asst.EventID = "evt_9"

	updated, _ := m.handleRateResult(RateResultMsg{MessageID: asst.ID, Rating: 5})
	m = updated.(Model)
	if got := m.conversation.GetMessageByID(asst.ID); got.Rating != 5 {
		t.Errorf("rating = %d, want 5", got.Rating)
	}

	updated, _ = m.handleRateResult(RateResultMsg{MessageID: asst.ID, Rating: history.RatingCleared})
	m = updated.(Model)
	if got := m.conversation.GetMessageByID(asst.ID); got.Rating != 0 {
		t.Errorf("cleared rating = %d, want 0", got.Rating)
	}
}

func TestSendPrompt_BudgetExhaustedBlocksSubmission(t *testing.T) {
	m := newTestModel(t)
	m.conversation.SetMaxTokens(5)

	before := m.conversation.MessageCount()
	updated, _ := m.sendPrompt(strings.Repeat("token budget overflow ", 20))
	m = updated.(Model)

	if m.conversation.MessageCount() != before {
		t.Error("an oversized prompt must not be appended to the transcript")
	}
	if m.state != StateReady {
		t.Errorf("state = %v, want StateReady", m.state)
	}
	if !m.toasts.HasToasts() {
		t.Error("budget rejection should surface a warning toast")
	}
}

func TestCommandRate_RequiresSavedMessage(t *testing.T) {
	m := newTestModel(t)
	m.conversation.AddUserMessage("q")

	updated, _ := m.executeCommand("/rate 5")
	m = updated.(Model)

	if !m.toasts.HasToasts() {
		t.Error("rating with nothing saved should warn")
	}
}

func TestCommandRate_TargetsLastSavedMessage(t *testing.T) {
	m := newTestModel(t)
	m.conversation.AddUserMessage("q1")
	first := m.conversation.AddAssistantMessage()
	first.FinalizeStream(nil)
	first.EventID = "evt_1"

	m.conversation.AddUserMessage("q2")
	second := m.conversation.AddAssistantMessage()
	second.FinalizeStream(nil)
	second.EventID = "evt_2"

	target := m.lastSavedAssistantMessage()
	if target == nil || target.EventID != "evt_2" {
		t.Fatalf("should target the most recent saved message, got %+v", target)
	}

	_, cmd := m.executeCommand("/rate 3")
	if cmd == nil {
		t.Error("/rate with a saved message should produce a sync command")
	}
}

func TestRateShortcut(t *testing.T) {
	m := newTestModel(t)
	m.conversation.AddUserMessage("q")
	asst := m.conversation.AddAssistantMessage()
	asst.FinalizeStream(nil)

	// Nothing saved yet: the digit falls through to the input line.
	if _, _, handled := m.rateShortcut(5); handled {
		t.Error("shortcut should not fire without a saved exchange")
	}

	asst.EventID = "evt_1"
	_, cmd, handled := m.rateShortcut(5)
	if !handled || cmd == nil {
		t.Error("shortcut should produce a sync command for a saved exchange")
	}

	// Zero clears.
	_, cmd, handled = m.rateShortcut(0)
	if !handled || cmd == nil {
		t.Error("zero should produce a clear command")
	}
}

func TestLoadableWithoutGateway(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Enabled = false
	m := New(cfg, llm.NewClient("http://127.0.0.1:1", "k"), nil)

	if m.persist {
		t.Error("persistence should be off without a gateway")
	}

	updated, _ := m.executeCommand("/history")
	m = updated.(Model)
	if !m.toasts.HasToasts() {
		t.Error("/history without a gateway should warn instead of crashing")
	}
}
