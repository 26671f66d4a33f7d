// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Rendering logic: the main layout, message bubbles, input area,
// status bar, help overlay, and toast stack.

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/components"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/styles"
	"github.com/halcyonlabs/halcyon-tui/internal/util"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

// renderChat renders the complete chat view.
// Layout: header (1 line) + messages (viewport) + input + status (1 line).
func (m Model) renderChat() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelpOverlay()
	}

	header := m.renderHeader()
	input := m.renderInput()
	status := m.renderStatusBar()

	headerHeight := lipgloss.Height(header)
	inputHeight := lipgloss.Height(input)
	statusHeight := lipgloss.Height(status)

	availableHeight := m.height - headerHeight - inputHeight - statusHeight
	if availableHeight < 1 {
		availableHeight = 1
	}

	messages := m.viewport.View()
	if lipgloss.Height(messages) != availableHeight {
		messages = lipgloss.NewStyle().
			Height(availableHeight).
			MaxHeight(availableHeight).
			Render(messages)
	}

	view := lipgloss.JoinVertical(lipgloss.Left, header, messages, input, status)

	if m.lastError != nil {
		return m.renderErrorOverlay(view)
	}
	if m.toasts.HasToasts() {
		view = m.appendToasts(view)
	}
	return view
}

// appendToasts overlays the toast stack on the bottom-right of the view.
func (m Model) appendToasts(view string) string {
	stack := components.RenderToastStack(m.toasts.Active(), m.width)
	if stack == "" {
		return view
	}

	lines := strings.Split(view, "\n")
	toastLines := strings.Split(stack, "\n")

	// Place toasts above the status bar, right-aligned.
	start := len(lines) - 1 - len(toastLines)
	if start < 0 {
		start = 0
	}
	for i, tl := range toastLines {
		idx := start + i
		if idx >= len(lines) {
			break
		}
		pad := m.width - lipgloss.Width(tl) - 1
		if pad < 0 {
			pad = 0
		}
		lines[idx] = strings.Repeat(" ", pad) + tl
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	brand := m.theme.HeaderBrand.Render("halcyon")
	title := m.conversation.GetTitle()
	if title == "" || title == "New Conversation" {
		title = "interactive completion client"
	}
	left := brand + "  " + m.theme.HeaderTitle.Render(util.TruncateWidth(title, m.width/2))

	var right string
	if m.persist {
		right = m.theme.SavedBadge.Render("recording on")
	} else {
		right = lipgloss.NewStyle().Foreground(styles.TextMuted).Render("recording off")
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// MESSAGES
// =============================================================================

// renderMessages renders the full transcript for the viewport.
func (m *Model) renderMessages() string {
	msgs := m.conversation.GetHistory()
	if len(msgs) == 0 {
		return m.renderEmptyState()
	}

	var b strings.Builder
	for i, msg := range msgs {
		rendered := m.renderMessage(msg, i == len(msgs)-1)
		if rendered != "" {
			b.WriteString(rendered)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *Model) renderMessage(msg *model.Message, isLast bool) string {
	switch msg.Role {
	case model.RoleUser:
		return m.renderUserMessage(msg)
	case model.RoleAssistant:
		return m.renderAssistantMessage(msg, isLast)
	case model.RoleSystem:
		return m.renderSystemMessage(msg)
	default:
		return ""
	}
}

func (m *Model) renderUserMessage(msg *model.Message) string {
	maxWidth := m.contentWidth()

	bubble := m.theme.UserBubble.MaxWidth(maxWidth)
	rendered := bubble.Render(wrapText(msg.GetDisplayContent(), maxWidth-4))

	// User messages align right.
	marginLeft := m.width - lipgloss.Width(rendered) - 4
	if marginLeft < 0 {
		marginLeft = 0
	}
	return lipgloss.NewStyle().
		MarginLeft(marginLeft).
		MarginTop(1).
		Render(rendered)
}

func (m *Model) renderAssistantMessage(msg *model.Message, isLast bool) string {
	maxWidth := m.contentWidth()

	content := msg.GetDisplayContent()
	if strings.TrimSpace(content) == "" && !msg.IsStreaming {
		return ""
	}

	// Streaming cursor on the live message.
	if msg.IsStreaming && m.state == StateStreaming && isLast {
		if content == "" {
			content = "_"
		} else {
			content += m.theme.StreamCursor.Render("_")
		}
	}

	bubble := m.theme.AssistantBubble.MaxWidth(maxWidth)
	rendered := bubble.Render(wrapText(content, maxWidth-4))

	var statsLine string
	if !msg.IsStreaming && msg.TotalDuration > 0 {
		statsLine = "\n" + m.renderStats(msg)
	}

	return lipgloss.NewStyle().
		MarginTop(1).
		MarginLeft(2).
		Render(rendered + statsLine)
}

func (m *Model) renderSystemMessage(msg *model.Message) string {
	maxWidth := m.contentWidth()
	bubble := m.theme.SystemBubble.MaxWidth(maxWidth)
	rendered := bubble.Render(wrapText(msg.GetDisplayContent(), maxWidth-4))
	return lipgloss.NewStyle().
		MarginTop(1).
		MarginLeft(2).
		Render(rendered)
}

// renderStats renders the metrics line under a finished assistant
// message, plus saved/rating badges when present.
func (m *Model) renderStats(msg *model.Message) string {
	parts := make([]string, 0, 3)

	if stats := msg.FormatStats(); stats != "" {
		parts = append(parts, m.theme.StatsLine.Render(stats))
	}
	if msg.IsSaved() {
		parts = append(parts, m.theme.SavedBadge.Render("saved"))
	}
	if msg.Rating > 0 {
		stars := strings.Repeat("*", msg.Rating) + strings.Repeat(".", 5-msg.Rating)
		parts = append(parts, m.theme.RatingStars.Render("["+stars+"]"))
	}

	if len(parts) == 0 {
		return ""
	}
	return lipgloss.NewStyle().PaddingLeft(2).Render(strings.Join(parts, "  "))
}

func (m *Model) renderEmptyState() string {
	lines := []string{
		"",
		m.theme.HeaderBrand.Render("halcyon"),
		"",
		lipgloss.NewStyle().Foreground(styles.TextSecondary).Render("Type a message and press Enter to start."),
		lipgloss.NewStyle().Foreground(styles.TextMuted).Render("Commands: /model /models /rate /history /clear /help /quit"),
	}
	return lipgloss.NewStyle().
		Width(m.viewport.Width).
		Align(lipgloss.Center).
		Render(strings.Join(lines, "\n"))
}

// =============================================================================
// INPUT AND STATUS
// =============================================================================

func (m Model) renderInput() string {
	if m.state == StateStreaming {
		var label string
		if m.isThinking {
			elapsed := time.Since(m.thinkingStart).Round(time.Second)
			label = m.theme.Spinner.Render(m.spinner.View()) + " " +
				m.theme.ThinkingText.Render(fmt.Sprintf("waiting for first token... %s", elapsed))
		} else {
			label = m.theme.StatusStreaming.Render("streaming") + " " +
				m.theme.ThinkingText.Render("(Esc to cancel, partial response is kept)")
		}
		return m.theme.InputContainer.Width(m.width).Render(label)
	}

	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	modelPart := m.theme.StatusModel.Render(m.ModelName())

	pct := m.conversation.GetContextPercent()
	ctxText := fmt.Sprintf("ctx %.0f%%", pct)
	var ctxPart string
	switch {
	case m.conversation.IsContextCritical():
		ctxPart = m.theme.StatusCritical.Render(ctxText)
	case m.conversation.IsContextNearLimit():
		ctxPart = m.theme.StatusWarning.Render(ctxText)
	default:
		ctxPart = m.theme.StatusContext.Render(ctxText)
	}

	left := modelPart + "  " + ctxPart
	if m.statusMsg != "" {
		left += "  " + m.theme.StatusContext.Render(m.statusMsg)
	}

	var hints []string
	for _, b := range m.keyMap.ShortHelp() {
		h := b.Help()
		hints = append(hints,
			m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	right := strings.Join(hints, "  ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		right = ""
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// OVERLAYS
// =============================================================================

func (m Model) renderErrorOverlay(base string) string {
	box := m.theme.ErrorBox.MaxWidth(m.width - 8).Render(
		m.theme.ErrorTitle.Render(m.lastError.Title) + "\n\n" +
			m.theme.ErrorMessage.Render(wrapText(m.lastError.Message, m.width-16)) + "\n\n" +
			lipgloss.NewStyle().Foreground(styles.TextMuted).Render("press any key to dismiss"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderHelpOverlay() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("halcyon help") + "\n\n")

	b.WriteString(m.theme.StatusModel.Render("Keys") + "\n")
	for _, group := range m.keyMap.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			fmt.Fprintf(&b, "  %s  %s\n",
				m.theme.ShortcutKey.Render(fmt.Sprintf("%-12s", h.Key)),
				m.theme.ShortcutDesc.Render(h.Desc))
		}
	}

	b.WriteString("\n" + m.theme.StatusModel.Render("Commands") + "\n")
	commands := [][2]string{
		{"/model [name]", "show or switch the completion model"},
		{"/models", "list available models"},
		{"/rate <1-5|clear>", "rate the last saved response"},
		{"/history", "list recent saved exchanges"},
		{"/sys [prompt]", "show or set the system prompt"},
		{"/clear", "clear the conversation"},
		{"/quit", "exit"},
	}
	for _, c := range commands {
		fmt.Fprintf(&b, "  %s  %s\n",
			m.theme.ShortcutKey.Render(fmt.Sprintf("%-18s", c[0])),
			m.theme.ShortcutDesc.Render(c[1]))
	}

	b.WriteString("\n" + lipgloss.NewStyle().Foreground(styles.TextMuted).Render("press C-h or /help to close"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, b.String())
}

// =============================================================================
// LAYOUT HELPERS
// =============================================================================

// contentWidth returns the maximum bubble width for the current
// terminal size.
func (m *Model) contentWidth() int {
	w := m.width - 8
	if w > m.width-2 {
		w = m.width - 2
	}
	if w < 10 {
		w = 10
	}
	return w
}
