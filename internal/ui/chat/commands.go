// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Slash command parsing and execution. Commands operate on the local
// conversation or the record-keeping backend and never block the
// Update loop; backend calls run as commands that deliver result
// messages.

package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/util"
)

// parseCommand splits a slash command line into its name and arguments.
// The leading slash is stripped and the name lowercased.
func parseCommand(line string) (name string, args []string) {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// executeCommand runs a slash command.
func (m Model) executeCommand(line string) (tea.Model, tea.Cmd) {
	name, args := parseCommand(line)

	switch name {
	case "help":
		m.showHelp = !m.showHelp
		return m, nil

	case "clear", "new":
		return m.Update(ClearConversationMsg{})

	case "model":
		return m.commandModel(args)

	case "models":
		return m.commandModels()

	case "sys", "system":
		return m.commandSystem(args)

	case "rate":
		return m.commandRate(args)

	case "history":
		return m.commandHistory()

	case "quit", "exit":
		m.controller.CancelActive()
		return m, tea.Quit

	default:
		m.toasts.AddWarning("unknown command /" + name + "; try /help")
		return m, toastCmd()
	}
}

// commandModel shows or switches the completion model.
func (m Model) commandModel(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		info, ok := model.GetModelInfo(m.ModelName())
		if ok {
			m.toasts.AddStatus(fmt.Sprintf("model: %s (%s)", info.Name, info.ContextString()))
		} else {
			m.toasts.AddStatus("model: " + m.ModelName())
		}
		return m, toastCmd()
	}

	name := args[0]
	info, ok := model.GetModelInfo(name)
	if !ok {
		m.toasts.AddError("unknown model " + name + "; try /models")
		return m, toastCmd()
	}

	if m.client != nil {
		m.client.SetModel(info.ID)
	}
	m.conversation.Model = info.ID
	m.conversation.SetMaxTokens(info.ContextLength)

	m.toasts.AddSuccess(fmt.Sprintf("switched to %s (%s)", info.Name, info.ContextString()))
	m.updateViewport()
	return m, toastCmd()
}

// commandModels lists the known models as a system message.
func (m Model) commandModels() (tea.Model, tea.Cmd) {
	var b strings.Builder
	b.WriteString("Available models:\n")
	for _, short := range model.ModelShortNames() {
		info := model.Models[short]
		marker := "  "
		if info.ID == m.ModelName() || short == m.ModelName() {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s%-16s %s (%s)\n", marker, short, info.Name, info.ContextString())
	}
	m.conversation.AddSystemMessage(strings.TrimRight(b.String(), "\n"))
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// commandSystem sets or shows the system prompt.
func (m Model) commandSystem(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		if m.conversation.SystemPrompt == "" {
			m.toasts.AddStatus("no system prompt set")
		} else {
			m.toasts.AddStatus("system prompt: " + util.Preview(m.conversation.SystemPrompt, 60))
		}
		return m, toastCmd()
	}

	m.conversation.SystemPrompt = strings.Join(args, " ")
	m.toasts.AddSuccess("system prompt updated")
	return m, toastCmd()
}

// commandRate parses "/rate <1-5|clear>" and syncs the rating for the
// most recent saved assistant message.
func (m Model) commandRate(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.toasts.AddWarning("usage: /rate <1-5|clear>")
		return m, toastCmd()
	}

	rating, err := ParseRating(args[0])
	if err != nil {
		m.toasts.AddWarning(err.Error())
		return m, toastCmd()
	}

	target := m.lastSavedAssistantMessage()
	if target == nil {
		m.toasts.AddWarning("nothing to rate: no saved response in this conversation")
		return m, toastCmd()
	}

	if m.gateway == nil {
		m.toasts.AddWarning("record keeping is disabled; rating not synced")
		return m, toastCmd()
	}

	return m, m.rateCmd(target.EventID, target.ID, rating)
}

// commandHistory fetches recent saved events from the backend.
func (m Model) commandHistory() (tea.Model, tea.Cmd) {
	if m.gateway == nil {
		m.toasts.AddWarning("record keeping is disabled")
		return m, toastCmd()
	}

	gateway := m.gateway
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		events, err := gateway.Events(ctx)
		return EventsResultMsg{Events: events, Err: err}
	}
}

// handleEventsResult renders the fetched history as a system message.
func (m Model) handleEventsResult(msg EventsResultMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.toasts.AddError("could not fetch history: " + msg.Err.Error())
		return m, toastCmd()
	}

	if len(msg.Events) == 0 {
		m.conversation.AddSystemMessage("No saved exchanges yet.")
		m.updateViewport()
		m.viewport.GotoBottom()
		return m, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent saved exchanges (%d):\n", len(msg.Events))
	for _, ev := range msg.Events {
		rating := "-"
		if ev.Rating > 0 {
			rating = strconv.Itoa(ev.Rating)
		}
		fmt.Fprintf(&b, "  %s  %s  rating:%s  %s\n",
			ev.ID, ev.Model, rating, util.Preview(ev.Prompt, 48))
	}
	m.conversation.AddSystemMessage(strings.TrimRight(b.String(), "\n"))
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// lastSavedAssistantMessage returns the most recent assistant message
// that has a backend event ID, or nil.
func (m *Model) lastSavedAssistantMessage() *model.Message {
	msgs := m.conversation.GetHistory()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && msgs[i].IsSaved() {
			return msgs[i]
		}
	}
	return nil
}

// ParseRating parses a rating argument: "1".."5" or "clear".
func ParseRating(arg string) (int, error) {
	if strings.EqualFold(arg, "clear") {
		return history.RatingCleared, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || !history.ValidRating(n) || n == history.RatingCleared {
		return 0, fmt.Errorf("rating must be 1-5 or \"clear\", got %q", arg)
	}
	return n, nil
}
