// Package tui is the terminal chat client. It drives a client.View from
// bubbletea messages; all view mutations happen in Update.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"careerchat/internal/client"
	"careerchat/internal/models"
)

type sendDoneMsg struct {
	result *models.SendResult
	err    error
}

type snapshotMsg struct {
	snap client.Snapshot
	err  error
}

type typingDoneMsg struct{}

type sessionCreatedMsg struct {
	session *models.ClientSession
	err     error
}

type sessionDeletedMsg struct {
	id  int64
	err error
}

type styles struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	pending   lipgloss.Style
	sidebar   lipgloss.Style
	selected  lipgloss.Style
	status    lipgloss.Style
	errStatus lipgloss.Style
	help      lipgloss.Style
}

func defaultStyles() styles {
	accent := lipgloss.Color("#01cdfe")
	muted := lipgloss.Color("#9ca3d8")
	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(accent).
			BorderStyle(lipgloss.RoundedBorder()).BorderBottom(true).Padding(0, 1),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#05ffa1")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(accent),
		pending:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		sidebar: lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).
			Padding(0, 1).Width(28),
		selected:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")).Bold(true),
		status:    lipgloss.NewStyle().Foreground(muted),
		errStatus: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")).Bold(true),
		help:      lipgloss.NewStyle().Foreground(muted),
	}
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx  context.Context
	api  client.API
	view *client.View

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	styles   styles

	width    int
	height   int
	showList bool
	naming   bool
	status   string
	failed   bool
}

const (
	chatPlaceholder = "Ask about your career..."
	namePlaceholder = "Name the new session (enter to create, esc to cancel)"
)

// New builds the chat model over api. The context bounds every server call.
func New(ctx context.Context, api client.API) Model {
	input := textinput.New()
	input.Placeholder = chatPlaceholder
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(80, 20)

	return Model{
		ctx:      ctx,
		api:      api,
		view:     client.NewView(api, nil),
		input:    input,
		spinner:  sp,
		viewport: vp,
		styles:   defaultStyles(),
		status:   "new session",
	}
}

// WithSessionName proposes a name for the session created by the first message.
func (m Model) WithSessionName(name string) Model {
	_ = m.view.NewSession(name)
	if proposed := m.view.ProposedName(); proposed != "" {
		m.status = "new session: " + proposed
	}
	return m
}

// ClientView exposes the underlying state machine.
func (m Model) ClientView() *client.View { return m.view }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), textinput.Blink)
}

func (m Model) fetch() tea.Cmd {
	ctx, api, sessionID := m.ctx, m.api, m.view.SessionID()
	return func() tea.Msg {
		snap, err := client.Fetch(ctx, api, sessionID)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m Model) send(text string) tea.Cmd {
	ctx, api, sessionID, name := m.ctx, m.api, m.view.SessionID(), m.view.ProposedName()
	return func() tea.Msg {
		result, err := api.SendMessage(ctx, text, sessionID, name)
		return sendDoneMsg{result: result, err: err}
	}
}

func (m Model) createSession(name string) tea.Cmd {
	ctx, api := m.ctx, m.api
	return func() tea.Msg {
		session, err := api.CreateSession(ctx, name)
		return sessionCreatedMsg{session: session, err: err}
	}
}

func (m Model) deleteSession(id int64) tea.Cmd {
	ctx, api := m.ctx, m.api
	return func() tea.Msg {
		return sessionDeletedMsg{id: id, err: api.DeleteSession(ctx, id)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.render()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sendDoneMsg:
		m.input.Focus()
		if msg.err != nil {
			_ = m.view.Failed(msg.err)
			m.setError(msg.err)
			m.render()
			return m, nil
		}
		_ = m.view.Succeeded(*msg.result)
		m.setStatus(fmt.Sprintf("session #%d", msg.result.SessionID))
		m.render()
		return m, tea.Batch(m.fetch(), tea.Tick(client.TypingGrace, func(time.Time) tea.Msg { return typingDoneMsg{} }))

	case sessionCreatedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.view.Created(*msg.session)
		m.setStatus(msg.session.Name)
		m.render()
		return m, m.fetch()

	case sessionDeletedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.view.Deleted(msg.id)
		m.setStatus("session deleted")
		m.render()
		return m, m.fetch()

	case snapshotMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.view.Apply(msg.snap)
		m.render()
		return m, nil

	case typingDoneMsg:
		m.render()
		return m, nil

	case spinner.TickMsg:
		if !m.view.Typing() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.view.CanSend() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.naming {
		return m.handleNamingKey(msg)
	}
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyCtrlN:
		if !m.view.CanSend() {
			m.setError(client.ErrSendInFlight)
			return m, nil
		}
		m.naming = true
		m.input.Reset()
		m.input.Placeholder = namePlaceholder
		return m, nil

	case tea.KeyCtrlD:
		id := m.view.SessionID()
		if id == 0 {
			return m, nil
		}
		if !m.view.CanSend() {
			m.setError(client.ErrSendInFlight)
			return m, nil
		}
		m.setStatus("deleting...")
		return m, m.deleteSession(id)

	case tea.KeyCtrlL:
		m.showList = !m.showList
		m.resize()
		return m, m.fetch()

	case tea.KeyTab:
		next, ok := m.nextSession()
		if !ok {
			return m, nil
		}
		if err := m.view.SelectSession(next.ID); err != nil {
			m.setError(err)
			return m, nil
		}
		m.setStatus(next.Name)
		m.render()
		return m, m.fetch()

	case tea.KeyEnter:
		m.view.SetInput(m.input.Value())
		text, err := m.view.Submit()
		if err != nil {
			if !errors.Is(err, client.ErrEmptyInput) {
				m.setError(err)
			}
			return m, nil
		}
		m.input.Reset()
		m.input.Blur()
		m.setStatus("sending...")
		m.render()
		return m, tea.Batch(m.send(text), m.spinner.Tick)
	}

	if !m.view.CanSend() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleNamingKey edits the name of a new session. A blank name starts a
// fresh conversation that the first message creates under the default name.
func (m Model) handleNamingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEsc:
		m.endNaming()
		return m, nil

	case tea.KeyEnter:
		name := strings.TrimSpace(m.input.Value())
		m.endNaming()
		if name == "" {
			if err := m.view.NewSession(""); err != nil {
				m.setError(err)
				return m, nil
			}
			m.setStatus("new session")
			m.render()
			return m, nil
		}
		m.setStatus("creating " + name + "...")
		return m, m.createSession(name)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) endNaming() {
	m.naming = false
	m.input.Reset()
	m.input.Placeholder = chatPlaceholder
}

// nextSession is the session after the selected one in list order, wrapping around.
func (m Model) nextSession() (models.ClientSession, bool) {
	sessions := m.view.Sessions()
	if len(sessions) == 0 {
		return models.ClientSession{}, false
	}
	current := m.view.SessionID()
	for i, s := range sessions {
		if s.ID == current {
			return sessions[(i+1)%len(sessions)], true
		}
	}
	return sessions[0], true
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.failed = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.failed = true
}

func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	w := m.width
	if m.showList {
		w -= m.styles.sidebar.GetWidth() + 2
	}
	if w < 20 {
		w = 20
	}
	h := m.height - 5
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 4
}

func (m *Model) render() {
	var b strings.Builder
	for _, msg := range m.view.DisplayMessages() {
		switch {
		case msg.Pending:
			b.WriteString(m.styles.pending.Render("you: " + msg.Content))
		case msg.Role == models.RoleUser:
			b.WriteString(m.styles.user.Render("you: ") + msg.Content)
		default:
			b.WriteString(m.styles.assistant.Render("counselor: ") + msg.Content)
		}
		b.WriteString("\n\n")
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	header := m.styles.header.Render("careerchat")

	body := m.viewport.View()
	if m.showList {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sessionList(), body)
	}

	status := m.styles.status.Render(m.status)
	if m.failed {
		status = m.styles.errStatus.Render(m.status)
	}
	if m.view.Typing() {
		status = m.spinner.View() + " counselor is typing  " + status
	}
	help := m.styles.help.Render("enter send • ctrl+n new • ctrl+d delete • ctrl+l sessions • tab next • esc quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.input.View(), status, help)
}

func (m Model) sessionList() string {
	var b strings.Builder
	current := m.view.SessionID()
	for _, s := range m.view.Sessions() {
		line := s.Name
		if s.ID == current {
			line = m.styles.selected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	if b.Len() == 0 {
		b.WriteString("no sessions yet")
	}
	return m.styles.sidebar.Render(b.String())
}

// Run starts the program on the terminal and blocks until the user quits.
// A non-blank sessionName names the session the first message creates.
func Run(ctx context.Context, api client.API, sessionName string) error {
	model := New(ctx, api).WithSessionName(sessionName)
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
