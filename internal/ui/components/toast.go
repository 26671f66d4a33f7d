// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides shared UI components for the halcyon TUI.
//
// Toasts are non-blocking corner notifications that auto-dismiss. They are
// used for outcomes that must not interrupt the conversation: a failed
// rating sync, a failed save, or a confirmation that an exchange was
// recorded.
package components

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/halcyonlabs/halcyon-tui/internal/ui/styles"
)

// ToastKind represents the type of toast notification.
type ToastKind int

const (
	// ToastKindStatus is an informational toast (cyan)
	ToastKindStatus ToastKind = iota
	// ToastKindError is an error toast (rose)
	ToastKindError
	// ToastKindWarning is a warning toast (amber)
	ToastKindWarning
	// ToastKindSuccess is a success toast (emerald)
	ToastKindSuccess
)

// StatusToastDuration is the auto-dismiss duration for status toasts.
const StatusToastDuration = 4 * time.Second

// ErrorToastDuration is the auto-dismiss duration for error toasts
// (longer, so the message can actually be read).
const ErrorToastDuration = 8 * time.Second

// WarningToastDuration is the auto-dismiss duration for warning toasts.
const WarningToastDuration = 6 * time.Second

// Toast represents a single non-blocking notification.
type Toast struct {
	ID        int
	Message   string
	Kind      ToastKind
	CreatedAt time.Time
	Duration  time.Duration
}

// IsExpired reports whether the toast has outlived its duration.
func (t *Toast) IsExpired() bool {
	return time.Since(t.CreatedAt) >= t.Duration
}

var toastIDCounter int
var toastIDMu sync.Mutex

func nextToastID() int {
	toastIDMu.Lock()
	defer toastIDMu.Unlock()
	toastIDCounter++
	return toastIDCounter
}

func newToast(message string, kind ToastKind, dur time.Duration) Toast {
	return Toast{
		ID:        nextToastID(),
		Message:   message,
		Kind:      kind,
		CreatedAt: time.Now(),
		Duration:  dur,
	}
}

// =============================================================================
// TOAST MANAGER
// =============================================================================

// ToastManager tracks active toasts and expires them over time.
// Thread-safe: toasts may be added from command goroutines while the
// Bubble Tea loop renders them.
type ToastManager struct {
	mu     sync.Mutex
	toasts []Toast
}

// NewToastManager creates an empty toast manager.
func NewToastManager() *ToastManager {
	return &ToastManager{}
}

// AddError adds an error toast and returns its ID.
func (m *ToastManager) AddError(message string) int {
	return m.add(newToast(message, ToastKindError, ErrorToastDuration))
}

// AddWarning adds a warning toast and returns its ID.
func (m *ToastManager) AddWarning(message string) int {
	return m.add(newToast(message, ToastKindWarning, WarningToastDuration))
}

// AddStatus adds an informational toast and returns its ID.
func (m *ToastManager) AddStatus(message string) int {
	return m.add(newToast(message, ToastKindStatus, StatusToastDuration))
}

// AddSuccess adds a success toast and returns its ID.
func (m *ToastManager) AddSuccess(message string) int {
	return m.add(newToast(message, ToastKindSuccess, StatusToastDuration))
}

func (m *ToastManager) add(t Toast) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toasts = append(m.toasts, t)
	return t.ID
}

// Remove dismisses a toast by ID.
func (m *ToastManager) Remove(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.toasts {
		if t.ID == id {
			m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
			return
		}
	}
}

// Tick drops expired toasts and returns the surviving ones.
func (m *ToastManager) Tick() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.toasts[:0]
	for _, t := range m.toasts {
		if !t.IsExpired() {
			live = append(live, t)
		}
	}
	m.toasts = live

	out := make([]Toast, len(m.toasts))
	copy(out, m.toasts)
	return out
}

// Active returns a copy of the currently active toasts.
func (m *ToastManager) Active() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Toast, len(m.toasts))
	copy(out, m.toasts)
	return out
}

// HasToasts reports whether any toast is currently active.
func (m *ToastManager) HasToasts() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.toasts) > 0
}

// Clear removes all toasts.
func (m *ToastManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toasts = nil
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// ToastTickMsg drives toast expiry while any toast is visible.
type ToastTickMsg struct {
	Time time.Time
}

// ToastTickCmd schedules the next toast expiry check.
func ToastTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return ToastTickMsg{Time: t}
	})
}

// =============================================================================
// RENDERING
// =============================================================================

func toastStyle(kind ToastKind) lipgloss.Style {
	base := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1)

	switch kind {
	case ToastKindError:
		return base.BorderForeground(styles.Rose).Foreground(styles.Rose)
	case ToastKindWarning:
		return base.BorderForeground(styles.Amber).Foreground(styles.Amber)
	case ToastKindSuccess:
		return base.BorderForeground(styles.Emerald).Foreground(styles.Emerald)
	default:
		return base.BorderForeground(styles.Cyan).Foreground(styles.Cyan)
	}
}

func toastIcon(kind ToastKind) string {
	switch kind {
	case ToastKindError:
		return styles.IconError
	case ToastKindWarning:
		return styles.IconWarning
	case ToastKindSuccess:
		return styles.IconSuccess
	default:
		return styles.IconInfo
	}
}

// RenderToast renders a single toast at the given maximum width.
func RenderToast(t Toast, width int) string {
	maxWidth := width - 4
	if maxWidth < 20 {
		maxWidth = 20
	}

	msg := toastIcon(t.Kind) + " " + t.Message
	if lipgloss.Width(msg) > maxWidth {
		msg = wrapToastText(msg, maxWidth)
	}
	return toastStyle(t.Kind).MaxWidth(maxWidth).Render(msg)
}

// RenderToastStack renders active toasts newest-last, one per line.
func RenderToastStack(toasts []Toast, width int) string {
	if len(toasts) == 0 {
		return ""
	}
	rendered := make([]string, 0, len(toasts))
	for _, t := range toasts {
		rendered = append(rendered, RenderToast(t, width))
	}
	return lipgloss.JoinVertical(lipgloss.Right, rendered...)
}

func wrapToastText(text string, maxWidth int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	var line strings.Builder
	for _, w := range words {
		if line.Len() > 0 && line.Len()+1+len(w) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(w)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
