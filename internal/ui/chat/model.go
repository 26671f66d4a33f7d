// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/halcyonlabs/halcyon-tui/internal/budget"
	"github.com/halcyonlabs/halcyon-tui/internal/config"
	"github.com/halcyonlabs/halcyon-tui/internal/history"
	"github.com/halcyonlabs/halcyon-tui/internal/llm"
	"github.com/halcyonlabs/halcyon-tui/internal/model"
	"github.com/halcyonlabs/halcyon-tui/internal/session"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/components"
	"github.com/halcyonlabs/halcyon-tui/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving a streaming response
	StateError                  // Showing a blocking error
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// State
	state State

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// Conversation
	conversation *model.Conversation

	// Service clients
	client  *llm.Client
	gateway *history.Gateway
	persist bool

	// Streaming
	controller *session.Controller // Pointer to avoid copying mutex during Bubble Tea updates
	buffer     *StreamingBuffer
	streamSess *session.Session

	// Current streaming message
	streamingMsgID string
	streamingStats *model.Statistics

	// Token budgeting
	estimator    *budget.Estimator
	safetyFactor float64

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	toasts   *components.ToastManager

	// Key bindings
	keyMap KeyMap

	// Error state
	lastError *ErrorMsg

	// Status
	isThinking    bool
	thinkingStart time.Time
	showHelp      bool
	statusMsg     string

	// Completion parameters
	temperature float64
}

// New creates a chat model wired to the given completion client and
// record-keeping gateway. gateway may be nil when persistence is
// disabled.
func New(cfg *config.Config, client *llm.Client, gateway *history.Gateway) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	// ASCII spinner frames render everywhere, including consoles
	// without glyph fallback.
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	modelName := cfg.DefaultModel
	if client != nil && client.Model() != "" {
		modelName = client.Model()
	}

	conv := model.NewConversationWithModel(modelName)
	conv.SystemPrompt = cfg.UI.SystemPrompt
	if n := cfg.ContextLengthFor(modelName); n > 0 {
		conv.SetMaxTokens(n)
	}

	return Model{
		state:        StateReady,
		theme:        styles.NewThemeForMode(cfg.UI.Theme),
		conversation: conv,
		client:       client,
		gateway:      gateway,
		persist:      cfg.Backend.Enabled && gateway != nil,
		controller:   session.NewController(),
		buffer:       NewStreamingBuffer(),
		estimator:    budget.NewEstimator(),
		safetyFactor: cfg.Budget.SafetyFactor,
		viewport:     vp,
		input:        ti,
		spinner:      sp,
		toasts:       components.NewToastManager(),
		keyMap:       DefaultKeyMap(),
		temperature:  cfg.Service.Temperature,
	}
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamTickMsg:
		return m.handleStreamTick(msg)

	case StreamDoneMsg:
		return m.handleStreamDone(msg)

	case SaveResultMsg:
		return m.handleSaveResult(msg)

	case RateResultMsg:
		return m.handleRateResult(msg)

	case EventsResultMsg:
		return m.handleEventsResult(msg)

	case ErrorMsg:
		m.lastError = &msg
		m.state = StateError
		return m, nil

	case ErrorDismissMsg:
		m.lastError = nil
		m.state = StateReady
		m.input.Focus()
		return m, textinput.Blink

	case ClearConversationMsg:
		m.conversation.ClearHistory()
		m.updateViewport()
		return m, nil

	case spinner.TickMsg:
		if m.isThinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case components.ToastTickMsg:
		if live := m.toasts.Tick(); len(live) > 0 {
			return m, components.ToastTickCmd()
		}
		return m, nil

	default:
		var cmds []tea.Cmd
		if m.state == StateReady {
			var inputCmd tea.Cmd
			m.input, inputCmd = m.input.Update(msg)
			cmds = append(cmds, inputCmd)
		}

		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)

		return m, tea.Batch(cmds...)
	}
}

// View renders the chat view.
func (m Model) View() string {
	return m.renderChat()
}

// =============================================================================
// ACCESSORS
// =============================================================================

// GetState returns the current chat state.
func (m *Model) GetState() State {
	return m.state
}

// GetConversation returns the active conversation.
func (m *Model) GetConversation() *model.Conversation {
	return m.conversation
}

// SetConversation replaces the active conversation.
func (m *Model) SetConversation(conv *model.Conversation) {
	if conv != nil {
		m.conversation = conv
		m.updateViewport()
	}
}

// ModelName returns the completion model in use.
func (m *Model) ModelName() string {
	if m.client != nil {
		return m.client.Model()
	}
	return m.conversation.Model
}

// handleResize recalculates layout on terminal size changes.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	// header (1) + input (2: border + line) + status (1)
	const chromeHeight = 4
	vpHeight := msg.Height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = msg.Width
	m.viewport.Height = vpHeight
	m.input.Width = msg.Width - 6

	m.updateViewport()
	return m, nil
}

// updateViewport re-renders the transcript into the viewport.
func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderMessages())
}
