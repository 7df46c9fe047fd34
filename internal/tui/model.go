// Package tui implements the terminal chat view of the tutor on top of bubbletea.
//
// The view never mutates the session from inside Update. Session operations emit events synchronously, and those
// events are forwarded into the program with Program.Send, which would block the event loop if called from Update.
// Every mutation therefore runs inside a tea.Cmd.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/session"
)

// Session is the part of a tutoring session the chat view drives
type Session interface {
	Submit(ctx context.Context, question string) (string, error)
	SetAPIKey(ctx context.Context, key string) error
	ClearHistory()
	Messages() []ai.Message
	Configured() bool
	Transcript() ai.Transcript
}

// Options configures the chat view
type Options struct {
	Title         string
	Topic         string
	InitialAPIKey string // Applied when the program starts
	TranscriptDir string
	MarkdownStyle string // A glamour standard style name; empty selects a style from the terminal background
}

type (
	// sessionEventMsg carries a session event into the program
	sessionEventMsg struct{ event session.Event }
	replyMsg        struct{ err error }
	keyResultMsg    struct{ err error }
	clearedMsg      struct{}
	exportedMsg     struct {
		path string
		err  error
	}
)

// Model is the bubbletea model of the chat view
type Model struct {
	ctx     context.Context
	session Session
	opts    Options
	keys    KeyMap

	viewport viewport.Model
	input    textinput.Model
	keyInput textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	messages    []ai.Message
	notice      *session.Notice
	busy        bool
	enteringKey bool
	ready       bool
	width       int
	height      int
}

// New creates the chat view for a session
func New(ctx context.Context, sess Session, opts Options) Model {
	input := textinput.New()
	input.Placeholder = fmt.Sprintf("Ask a question about %s...", topicLabel(opts.Topic))
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	keyInput := textinput.New()
	keyInput.Placeholder = "Paste your API key"
	keyInput.Prompt = "API key: "
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.EchoCharacter = '•'

	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(colorAccent)),
	)

	m := Model{
		ctx:      ctx,
		session:  sess,
		opts:     opts,
		keys:     DefaultKeyMap(),
		input:    input,
		keyInput: keyInput,
		spinner:  spin,
		messages: sess.Messages(),
	}
	if !sess.Configured() && opts.InitialAPIKey == "" {
		m.startKeyEntry()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.opts.InitialAPIKey != "" {
		cmds = append(cmds, m.setKeyCmd(m.opts.InitialAPIKey))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sessionEventMsg:
		m.handleEvent(msg.event)
		return m, nil

	case replyMsg:
		m.busy = false
		m.refreshMessages()
		if msg.err != nil && !isReportedError(msg.err) {
			m.notice = &session.Notice{Level: session.NoticeError, Text: msg.err.Error()}
		}
		if m.enteringKey {
			return m, nil
		}
		cmd := m.input.Focus()
		return m, cmd

	case keyResultMsg:
		m.refreshMessages()
		if msg.err != nil {
			m.startKeyEntry()
		}
		return m, nil

	case clearedMsg:
		m.refreshMessages()
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.notice = &session.Notice{Level: session.NoticeError, Text: fmt.Sprintf("Failed to save transcript: %s", msg.err)}
		} else {
			m.notice = &session.Notice{Level: session.NoticeSuccess, Text: fmt.Sprintf("Transcript saved to %s", msg.path)}
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.enteringKey {
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.stopKeyEntry()
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			apiKey := m.keyInput.Value()
			m.stopKeyEntry()
			return m, m.setKeyCmd(apiKey)
		}
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		return m, tea.Quit
	case key.Matches(msg, m.keys.SetKey):
		m.startKeyEntry()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Clear):
		return m, m.clearCmd()
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	// Input is disabled while a turn is in flight
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	question := strings.TrimSpace(m.input.Value())
	if question == "" {
		return m, nil
	}
	m.input.Reset()
	m.input.Blur()
	m.busy = true
	m.notice = nil
	return m, tea.Batch(m.submitCmd(question), m.spinner.Tick)
}

func (m *Model) handleEvent(event session.Event) {
	switch event.Kind {
	case session.EventHistoryChanged:
		m.refreshMessages()
	case session.EventNotice:
		notice := event.Notice
		m.notice = &notice
	case session.EventStateChanged:
		m.busy = event.State.Busy()
	}
}

func (m *Model) startKeyEntry() {
	m.enteringKey = true
	m.input.Blur()
	m.keyInput.Reset()
	m.keyInput.Focus()
}

func (m *Model) stopKeyEntry() {
	m.enteringKey = false
	m.keyInput.Reset()
	m.keyInput.Blur()
	if !m.busy {
		m.input.Focus()
	}
}

func (m Model) submitCmd(question string) tea.Cmd {
	return func() tea.Msg {
		_, err := m.session.Submit(m.ctx, question)
		return replyMsg{err: err}
	}
}

func (m Model) setKeyCmd(apiKey string) tea.Cmd {
	return func() tea.Msg {
		return keyResultMsg{err: m.session.SetAPIKey(m.ctx, apiKey)}
	}
}

func (m Model) clearCmd() tea.Cmd {
	return func() tea.Msg {
		m.session.ClearHistory()
		return clearedMsg{}
	}
}

func (m Model) exportCmd() tea.Cmd {
	return func() tea.Msg {
		transcript := m.session.Transcript()
		path := filepath.Join(m.opts.TranscriptDir, ai.TranscriptFileName(transcript.SessionID))
		return exportedMsg{path: path, err: ai.WriteTranscript(path, transcript)}
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	// Title, notice, bordered input and help line
	chrome := 1 + 1 + 3 + 1
	vpHeight := max(height-chrome, 1)
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(width-8, 10)
	m.keyInput.Width = max(width-16, 10)

	m.renderer = newRenderer(m.opts.MarkdownStyle, max(width-4, 20))
	m.refreshViewport()
}

func (m *Model) refreshMessages() {
	m.messages = m.session.Messages()
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m Model) renderConversation() string {
	if len(m.messages) == 0 {
		if !m.session.Configured() {
			return placeholderStyle.Render("Press ctrl+k to enter your API key.")
		}
		return placeholderStyle.Render(fmt.Sprintf("Ask a question about %s to get started.", topicLabel(m.opts.Topic)))
	}

	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.Role {
		case ai.RoleUser:
			sb.WriteString(userLabelStyle.Render(ai.Speaker(msg.Role) + ":"))
			sb.WriteString("\n")
			sb.WriteString(userTextStyle.Width(max(m.width-2, 10)).Render(msg.Content))
			sb.WriteString("\n\n")
		case ai.RoleAssistant:
			sb.WriteString(tutorLabelStyle.Render(ai.Speaker(msg.Role) + ":"))
			sb.WriteString("\n")
			sb.WriteString(renderMarkdown(m.renderer, msg.Content))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.opts.Title))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")

	if m.notice != nil {
		sb.WriteString(noticeStyle(m.notice.Level).Render(m.notice.Text))
	}
	sb.WriteString("\n")

	switch {
	case m.enteringKey:
		sb.WriteString(inputBorderStyle.Render(m.keyInput.View()))
	case m.busy:
		sb.WriteString(inputBorderStyle.Render(m.spinner.View() + " Thinking..."))
	default:
		sb.WriteString(inputBorderStyle.Render(m.input.View()))
	}
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(m.helpLine()))
	return sb.String()
}

func (m Model) helpLine() string {
	bindings := m.keys.ShortHelp()
	if m.enteringKey {
		bindings = []key.Binding{m.keys.Submit, m.keys.Cancel, m.keys.Quit}
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, b.Help().Key+" "+b.Help().Desc)
	}
	return strings.Join(parts, " • ")
}

func newRenderer(style string, wrap int) *glamour.TermRenderer {
	styleOption := glamour.WithAutoStyle()
	if style != "" {
		styleOption = glamour.WithStandardStyle(style)
	}
	renderer, err := glamour.NewTermRenderer(styleOption, glamour.WithWordWrap(wrap))
	if err != nil {
		// Fall back to plain text
		return nil
	}
	return renderer
}

func renderMarkdown(renderer *glamour.TermRenderer, content string) string {
	if renderer == nil {
		return content + "\n"
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return rendered
}

func topicLabel(topic string) string {
	if strings.TrimSpace(topic) == "" {
		return ai.DefaultTopic
	}
	return topic
}

// isReportedError reports whether err needs no banner of its own: either the session already surfaced it as a notice,
// or the reply it refers to was dropped by a reset the user asked for
func isReportedError(err error) bool {
	var providerErr *ai.ProviderError
	return errors.Is(err, ai.ErrNotConfigured) || errors.Is(err, session.ErrReplyDiscarded) || errors.As(err, &providerErr)
}
