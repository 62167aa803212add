package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"careerchat/internal/client"
	"careerchat/internal/models"
)

type stubAPI struct {
	sessions []models.ClientSession
	messages map[int64][]models.ClientMessage
	sendErr  error
	sent     []int64
	names    []string
	deleted  []int64
}

func (s *stubAPI) CreateSession(_ context.Context, name string) (*models.ClientSession, error) {
	session := models.ClientSession{ID: int64(len(s.sessions) + 100), Name: name}
	s.sessions = append([]models.ClientSession{session}, s.sessions...)
	return &session, nil
}

func (s *stubAPI) ListSessions(_ context.Context, page, pageSize int) (*models.Page[models.ClientSession], error) {
	items := append([]models.ClientSession(nil), s.sessions...)
	p := models.NewPage(items, len(items), page, pageSize)
	return &p, nil
}

func (s *stubAPI) ListMessages(_ context.Context, sessionID int64, page, pageSize int) (*models.Page[models.ClientMessage], error) {
	items := s.messages[sessionID]
	p := models.NewPage(items, len(items), page, pageSize)
	return &p, nil
}

func (s *stubAPI) DeleteSession(_ context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	var kept []models.ClientSession
	for _, session := range s.sessions {
		if session.ID != id {
			kept = append(kept, session)
		}
	}
	s.sessions = kept
	return nil
}

func (s *stubAPI) SendMessage(_ context.Context, text string, sessionID int64, name string) (*models.SendResult, error) {
	s.sent = append(s.sent, sessionID)
	s.names = append(s.names, name)
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	if sessionID == 0 {
		sessionID = 1
		s.sessions = append(s.sessions, models.ClientSession{ID: 1, Name: "Career Counseling Session"})
	}
	s.messages[sessionID] = append(s.messages[sessionID],
		models.ClientMessage{ID: 1, SessionID: sessionID, Role: models.RoleUser, Content: text},
		models.ClientMessage{ID: 2, SessionID: sessionID, Role: models.RoleAssistant, Content: "Consider a bootcamp."},
	)
	return &models.SendResult{SessionID: sessionID, Reply: "Consider a bootcamp."}, nil
}

// firstCmd runs the first command of a batch, or the command itself.
func firstCmd(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		require.NotEmpty(t, batch)
		return batch[0]()
	}
	return msg
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func newTestModel(api *stubAPI) Model {
	m := New(context.Background(), api)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func TestEnterSendsAndSettles(t *testing.T) {
	api := &stubAPI{messages: map[int64][]models.ClientMessage{}}
	m := newTestModel(api)

	m = typeText(t, m, "I want to move into data science")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, client.StateSending, m.ClientView().State())
	require.False(t, m.ClientView().CanSend())
	require.Empty(t, m.input.Value())
	require.Contains(t, m.View(), "I want to move into data science")
	require.Contains(t, m.View(), "typing")

	// Keys are ignored while the send is in flight.
	m = typeText(t, m, "more")
	require.Empty(t, m.input.Value())

	done := firstCmd(t, cmd)
	require.IsType(t, sendDoneMsg{}, done)
	m, cmd = update(t, m, done)
	require.Equal(t, client.StateSettled, m.ClientView().State())
	require.Equal(t, int64(1), m.ClientView().SessionID())

	snap := firstCmd(t, cmd)
	require.IsType(t, snapshotMsg{}, snap)
	m, _ = update(t, m, snap)
	require.Len(t, m.ClientView().DisplayMessages(), 2)
	require.Contains(t, m.View(), "Consider a bootcamp.")
}

func TestSendFailureShowsError(t *testing.T) {
	api := &stubAPI{messages: map[int64][]models.ClientMessage{}, sendErr: errors.New("server returned 502")}
	m := newTestModel(api)

	m = typeText(t, m, "hello")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, firstCmd(t, cmd))

	require.Equal(t, client.StateFailed, m.ClientView().State())
	require.Empty(t, m.ClientView().DisplayMessages())
	require.True(t, m.failed)
	require.Contains(t, m.View(), "server returned 502")
	require.NotContains(t, m.View(), "typing")
}

func TestEmptyEnterDoesNothing(t *testing.T) {
	api := &stubAPI{messages: map[int64][]models.ClientMessage{}}
	m := newTestModel(api)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Equal(t, client.StateIdle, m.ClientView().State())
	require.Empty(t, api.sent)
}

func TestTabCyclesSessionsAndCtrlNStartsNew(t *testing.T) {
	api := &stubAPI{
		sessions: []models.ClientSession{{ID: 5, Name: "Resume"}, {ID: 3, Name: "Interviews"}},
		messages: map[int64][]models.ClientMessage{
			3: {{ID: 9, SessionID: 3, Role: models.RoleAssistant, Content: "Practice STAR answers."}},
		},
	}
	m := newTestModel(api)
	m, _ = update(t, m, firstCmd(t, m.Init()))
	require.Len(t, m.ClientView().Sessions(), 2)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, int64(5), m.ClientView().SessionID())
	m, _ = update(t, m, firstCmd(t, cmd))

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, int64(3), m.ClientView().SessionID())
	m, _ = update(t, m, firstCmd(t, cmd))
	require.Contains(t, m.View(), "Practice STAR answers.")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, int64(5), m.ClientView().SessionID())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	require.True(t, m.naming)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.False(t, m.naming)
	require.Zero(t, m.ClientView().SessionID())
	require.Empty(t, m.ClientView().DisplayMessages())

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.True(t, m.showList)
	m, _ = update(t, m, firstCmd(t, cmd))
	view := m.View()
	require.True(t, strings.Contains(view, "Resume") && strings.Contains(view, "Interviews"))
}

func TestCtrlNCreatesNamedSession(t *testing.T) {
	api := &stubAPI{messages: map[int64][]models.ClientMessage{}}
	m := newTestModel(api)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	require.Equal(t, namePlaceholder, m.input.Placeholder)
	m = typeText(t, m, "Negotiation")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.False(t, m.naming)
	require.Empty(t, m.input.Value())

	created := firstCmd(t, cmd)
	require.IsType(t, sessionCreatedMsg{}, created)
	m, cmd = update(t, m, created)
	require.Equal(t, int64(100), m.ClientView().SessionID())
	m, _ = update(t, m, firstCmd(t, cmd))
	require.Equal(t, "Negotiation", m.ClientView().Sessions()[0].Name)

	// Esc leaves the prompt without quitting.
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.Nil(t, cmd)
	require.False(t, m.naming)
	require.Equal(t, int64(100), m.ClientView().SessionID())
}

func TestSessionNameSentWithFirstMessage(t *testing.T) {
	api := &stubAPI{messages: map[int64][]models.ClientMessage{}}
	m := newTestModel(api).WithSessionName("Career change")
	require.Contains(t, m.View(), "Career change")

	m = typeText(t, m, "  hello  ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, "  hello  ", m.ClientView().DisplayMessages()[0].Content)
	m, _ = update(t, m, firstCmd(t, cmd))
	require.Equal(t, []string{"Career change"}, api.names)
	require.Empty(t, m.ClientView().ProposedName())
}

func TestCtrlDDeletesCurrentSession(t *testing.T) {
	api := &stubAPI{
		sessions: []models.ClientSession{{ID: 5, Name: "Resume"}, {ID: 3, Name: "Interviews"}},
		messages: map[int64][]models.ClientMessage{},
	}
	m := newTestModel(api)
	m, _ = update(t, m, firstCmd(t, m.Init()))

	// Nothing selected, nothing to delete.
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	require.Nil(t, cmd)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(t, m, firstCmd(t, cmd))
	require.Equal(t, int64(5), m.ClientView().SessionID())

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	deleted := firstCmd(t, cmd)
	require.IsType(t, sessionDeletedMsg{}, deleted)
	m, cmd = update(t, m, deleted)
	require.Equal(t, []int64{5}, api.deleted)
	require.Zero(t, m.ClientView().SessionID())
	m, _ = update(t, m, firstCmd(t, cmd))
	require.Len(t, m.ClientView().Sessions(), 1)
	require.Equal(t, int64(3), m.ClientView().Sessions()[0].ID)
}
