// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Key handling and the stream/save/rate lifecycle. Every stream ends
// in a StreamDoneMsg regardless of outcome, and the save decision is
// made exactly once in handleStreamDone, guarded by Session.MarkSaved.

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/halcyonlabs/halcyon-tui/internal/budget"
	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/llm"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/session"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/components"
)

// saveTimeout bounds the background save after a completed exchange.
const saveTimeout = 35 * time.Second

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any key dismisses a blocking error.
	if m.state == StateError {
		return m.Update(ErrorDismissMsg{})
	}

	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.controller.CancelActive()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Cancel):
		if m.state == StateStreaming {
			return m.cancelStream()
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keyMap.Clear):
		if m.state == StateReady {
			return m.Update(ClearConversationMsg{})
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		if m.state == StateReady {
			return m.handleSubmit()
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Up), key.Matches(msg, m.keyMap.Down),
		key.Matches(msg, m.keyMap.PageUp), key.Matches(msg, m.keyMap.PageDown),
		key.Matches(msg, m.keyMap.Home), key.Matches(msg, m.keyMap.End):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	// Digit shortcuts rate the last saved exchange: 1-5 set, 0 clears.
	// Only when the input line is empty, so typing numbers is unaffected.
	if m.state == StateReady && m.input.Value() == "" && len(msg.Runes) == 1 {
		if r := msg.Runes[0]; r >= '0' && r <= '5' {
			if updated, cmd, handled := m.rateShortcut(int(r - '0')); handled {
				return updated, cmd
			}
		}
	}

	if m.state == StateReady {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// rateShortcut handles the digit rating keys. Returns handled=false
// when there is nothing to rate, so the digit falls through to the
// input line.
func (m Model) rateShortcut(n int) (tea.Model, tea.Cmd, bool) {
	target := m.lastSavedAssistantMessage()
	if target == nil || m.gateway == nil {
		return m, nil, false
	}

	rating := n
	if n == 0 {
		rating = history.RatingCleared
	}
	return m, m.rateCmd(target.EventID, target.ID, rating), true
}

// handleSubmit dispatches the input line: slash commands are executed,
// anything else is sent to the completion service.
func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.executeCommand(text)
	}

	return m.sendPrompt(text)
}

// =============================================================================
// STREAMING LIFECYCLE
// =============================================================================

// sendPrompt validates the token budget, appends the user message, and
// starts streaming the assistant's reply.
func (m Model) sendPrompt(text string) (tea.Model, tea.Cmd) {
	if m.client == nil || !m.client.IsConfigured() {
		m.toasts.AddError("completion service is not configured; check service.base_url and api_key")
		return m, toastCmd()
	}

	// Budget check before anything is appended: an oversized prompt is
	// rejected outright rather than truncated.
	promptTokens := m.conversation.EstimateTokens() + m.estimator.Estimate(text)
	b := budget.Compute(m.conversation.MaxTokens, promptTokens, m.safetyFactor)
	if b.Exhausted() {
		m.toasts.AddWarning(fmt.Sprintf(
			"prompt too large: %d tokens reserved against a %d token window; trim the prompt or /clear",
			b.ReservedForPrompt, b.ModelContextLength))
		return m, toastCmd()
	}

	m.conversation.AddUserMessage(text)
	asst := m.conversation.AddAssistantMessage()
	m.input.Reset()

	m.state = StateStreaming
	m.isThinking = true
	m.thinkingStart = time.Now()
	m.streamingMsgID = asst.ID
	m.streamingStats = model.NewStatistics()
	m.buffer.Reset()

	sess, ctx := m.controller.Begin(context.Background())
	m.streamSess = sess

	req := &llm.CompletionRequest{
		Model:       m.client.Model(),
		Messages:    m.conversation.ToChatMessages(),
		Stream:      true,
		Temperature: m.temperature,
		MaxTokens:   b.AvailableForCompletion,
	}

	m.updateViewport()
	m.viewport.GotoBottom()

	return m, tea.Batch(
		m.spinner.Tick,
		streamTickCmd(),
		m.streamCmd(ctx, sess, req, asst.ID),
	)
}

// streamCmd opens the completion stream and drains it into the
// streaming buffer. Runs in a command goroutine; the 30fps tick in the
// Update loop renders what accumulates here.
func (m Model) streamCmd(ctx context.Context, sess *session.Session, req *llm.CompletionRequest, messageID string) tea.Cmd {
	client := m.client
	buffer := m.buffer
	stats := m.streamingStats

	return func() tea.Msg {
		stream, err := client.StreamCompletion(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				sess.Cancel()
				return StreamDoneMsg{SessionID: sess.ID(), MessageID: messageID}
			}
			sess.Fail(err)
			return StreamDoneMsg{SessionID: sess.ID(), MessageID: messageID, Err: err}
		}
		defer stream.Close()

		err = session.Consume(ctx, sess, stream, func(delta string) {
			stats.RecordFirstToken()
			buffer.Write(delta)
		})

		sess.SetGenerationID(stream.GenerationID())
		sess.SetUsage(stream.Usage())

		return StreamDoneMsg{SessionID: sess.ID(), MessageID: messageID, Err: err}
	}
}

// cancelStream requests cancellation of the in-flight stream. The
// stream goroutine observes the cancelled context and delivers the
// usual StreamDoneMsg; partial content already rendered stays in the
// transcript.
func (m Model) cancelStream() (tea.Model, tea.Cmd) {
	m.controller.CancelActive()
	m.isThinking = false
	return m, nil
}

// handleStreamTick drains the streaming buffer into the transcript at
// a capped frame rate.
func (m Model) handleStreamTick(StreamTickMsg) (tea.Model, tea.Cmd) {
	if m.state != StateStreaming {
		return m, nil
	}

	if content, ok := m.buffer.Flush(); ok {
		m.isThinking = false
		m.conversation.AppendToLast(content)
		m.updateViewport()
		m.viewport.GotoBottom()
	}

	return m, streamTickCmd()
}

// handleStreamDone finishes the stream in exactly one of three ways:
// completed (finalize and save), cancelled (keep partial, never save),
// or failed (surface the error, drop an empty placeholder).
func (m Model) handleStreamDone(msg StreamDoneMsg) (tea.Model, tea.Cmd) {
	if msg.MessageID == "" || msg.MessageID != m.streamingMsgID {
		// A stale stream superseded by a newer one.
		return m, nil
	}

	sess := m.streamSess
	if sess == nil {
		return m, nil
	}
	m.controller.Finish(sess)

	if content, ok := m.buffer.ForceFlush(); ok {
		m.conversation.AppendToLast(content)
	}

	stats := m.streamingStats
	if stats != nil {
		tokenCount := m.estimator.Estimate(sess.Content())
		if u := sess.Usage(); u != nil && u.CompletionTokens > 0 {
			tokenCount = u.CompletionTokens
		}
		stats.Finalize(tokenCount)
	}

	var cmds []tea.Cmd

	switch sess.State() {
	case session.StateCompleted:
		m.conversation.FinalizeLast(stats)
		if m.persist && sess.MarkSaved() {
			cmds = append(cmds, m.saveCmd(sess, msg.MessageID))
		}

	case session.StateCancelled:
		m.conversation.FinalizeLast(stats)
		m.toasts.AddStatus("generation cancelled; partial response kept on screen")
		cmds = append(cmds, toastCmd())

	default: // StateFailed
		lastMsg := m.conversation.GetMessageByID(msg.MessageID)
		if lastMsg != nil && lastMsg.IsEmpty() {
			m.conversation.RemoveMessage(msg.MessageID)
		} else {
			m.conversation.FinalizeLast(stats)
		}
		m.toasts.AddError(friendlyStreamError(msg.Err))
		cmds = append(cmds, toastCmd())
	}

	m.state = StateReady
	m.isThinking = false
	m.streamingMsgID = ""
	m.streamingStats = nil
	m.streamSess = nil

	m.updateViewport()
	m.viewport.GotoBottom()
	m.input.Focus()

	cmds = append(cmds, textinput.Blink)
	return m, tea.Batch(cmds...)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// saveCmd records the completed exchange with the backend. The guard in
// handleStreamDone (MarkSaved) guarantees this is issued at most once
// per session.
func (m Model) saveCmd(sess *session.Session, messageID string) tea.Cmd {
	gateway := m.gateway
	modelName := m.client.Model()

	var prompt string
	if userMsg := m.conversation.GetLastUserMessage(); userMsg != nil {
		prompt = userMsg.Content
	}

	req := history.PersistRequest{
		Model:               modelName,
		Prompt:              prompt,
		Response:            sess.Content(),
		ResponseTimeSeconds: sess.ResponseSeconds(),
		GenerationID:        sess.GenerationID(),
	}
	if u := sess.Usage(); u != nil {
		req.Usage = &history.UsageMetrics{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		result, err := gateway.Save(ctx, req)
		return SaveResultMsg{MessageID: messageID, Result: result, Err: err}
	}
}

func (m Model) handleSaveResult(msg SaveResultMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		// The exchange stays in the transcript; only the record is lost.
		m.toasts.AddWarning("exchange not recorded: " + msg.Err.Error())
		return m, toastCmd()
	}

	if saved := m.conversation.GetMessageByID(msg.MessageID); saved != nil {
		saved.EventID = msg.Result.EventID
	}
	m.statusMsg = "saved " + msg.Result.EventID
	m.updateViewport()
	return m, nil
}

// =============================================================================
// RATING
// =============================================================================

// rateCmd syncs a rating for a saved exchange. rating may be
// history.RatingCleared to clear.
func (m Model) rateCmd(eventID, messageID string, rating int) tea.Cmd {
	gateway := m.gateway

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		err := gateway.Rate(ctx, eventID, rating)
		return RateResultMsg{MessageID: messageID, Rating: rating, Err: err}
	}
}

func (m Model) handleRateResult(msg RateResultMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		// Rating sync is non-fatal: the conversation continues either way.
		m.toasts.AddError("rating not synced: " + msg.Err.Error())
		return m, toastCmd()
	}

	if rated := m.conversation.GetMessageByID(msg.MessageID); rated != nil {
		if msg.Rating == history.RatingCleared {
			rated.Rating = 0
		} else {
			rated.Rating = msg.Rating
		}
	}

	if msg.Rating == history.RatingCleared {
		m.toasts.AddSuccess("rating cleared")
	} else {
		m.toasts.AddSuccess(fmt.Sprintf("rated %d/5", msg.Rating))
	}
	m.updateViewport()
	return m, toastCmd()
}

// =============================================================================
// HELPERS
// =============================================================================

func toastCmd() tea.Cmd {
	return components.ToastTickCmd()
}

// friendlyStreamError maps service errors to actionable messages.
func friendlyStreamError(err error) string {
	switch {
	case err == nil:
		return "stream ended unexpectedly"
	case errors.Is(err, llm.ErrAuthFailed):
		return "authentication failed: check your API key"
	case errors.Is(err, llm.ErrRateLimited):
		return "rate limited by the completion service; wait a moment and retry"
	case errors.Is(err, llm.ErrModelNotFound):
		return "model not available on the completion service; try /models"
	default:
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) {
			return "service error: " + apiErr.Error()
		}
		return "streaming failed: " + err.Error()
	}
}
