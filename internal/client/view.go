package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"careerchat/internal/models"
)

// State is the send-cycle state of a View.
type State int

const (
	StateIdle State = iota
	StateSending
	StateSettled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// TypingGrace is how long the typing indicator stays up after a reply arrives.
const TypingGrace = time.Second

// historyPageSize is the largest message page the server accepts.
const historyPageSize = 100

var (
	ErrSendInFlight = errors.New("a message is already being sent")
	ErrEmptyInput   = errors.New("message is empty")
	ErrNotSending   = errors.New("no send in flight")
)

// API is the subset of the server surface the view needs.
type API interface {
	CreateSession(ctx context.Context, name string) (*models.ClientSession, error)
	ListSessions(ctx context.Context, page, pageSize int) (*models.Page[models.ClientSession], error)
	ListMessages(ctx context.Context, sessionID int64, page, pageSize int) (*models.Page[models.ClientMessage], error)
	DeleteSession(ctx context.Context, sessionID int64) error
	SendMessage(ctx context.Context, text string, sessionID int64, name string) (*models.SendResult, error)
}

// View holds the local conversation state and reconciles the optimistic
// message against server results. It must be driven from a single goroutine.
type View struct {
	api API
	now func() time.Time

	state        State
	input        string
	sessionID    int64
	proposedName string
	sessions     []models.ClientSession
	messages     []models.ClientMessage
	pending      *models.ClientMessage
	typing       bool
	typingUntil  time.Time
	stale        bool
	lastErr      error
}

// NewView creates an idle view. A nil clock uses time.Now.
func NewView(api API, clock func() time.Time) *View {
	if clock == nil {
		clock = time.Now
	}
	return &View{api: api, now: clock}
}

func (v *View) State() State      { return v.state }
func (v *View) Input() string     { return v.input }
func (v *View) SessionID() int64  { return v.sessionID }
func (v *View) Err() error        { return v.lastErr }
func (v *View) Stale() bool       { return v.stale }
func (v *View) SetInput(s string) { v.input = s }

// Sessions returns the last fetched session list, most recently active first.
func (v *View) Sessions() []models.ClientSession {
	return append([]models.ClientSession(nil), v.sessions...)
}

// CanSend reports whether the send control is enabled.
func (v *View) CanSend() bool {
	return v.state != StateSending
}

// Typing reports whether the typing indicator is shown.
func (v *View) Typing() bool {
	if !v.typing {
		return false
	}
	if v.state == StateSending {
		return true
	}
	if v.now().Before(v.typingUntil) {
		return true
	}
	v.typing = false
	return false
}

// DisplayMessages is the authoritative list followed by the optimistic message, if any.
func (v *View) DisplayMessages() []models.ClientMessage {
	out := make([]models.ClientMessage, 0, len(v.messages)+1)
	out = append(out, v.messages...)
	if v.pending != nil {
		out = append(out, *v.pending)
	}
	return out
}

// SelectSession switches to an existing session. The message list is stale
// until the next Refresh.
func (v *View) SelectSession(id int64) error {
	if v.state == StateSending {
		return ErrSendInFlight
	}
	if id != v.sessionID {
		v.sessionID = id
		v.messages = nil
	}
	v.stale = true
	return nil
}

// NewSession clears the selection; the next send creates a session server side
// under name, or the server default when name is blank.
func (v *View) NewSession(name string) error {
	if err := v.SelectSession(0); err != nil {
		return err
	}
	v.proposedName = strings.TrimSpace(name)
	return nil
}

// ProposedName is the name sent with the next message, set only while no
// session is selected.
func (v *View) ProposedName() string {
	if v.sessionID != 0 {
		return ""
	}
	return v.proposedName
}

// Created selects a session the server just created.
func (v *View) Created(session models.ClientSession) {
	v.sessionID = session.ID
	v.proposedName = ""
	v.messages = nil
	v.sessions = append([]models.ClientSession{session}, v.sessions...)
	v.stale = true
}

// Deleted drops a session the server just deleted, clearing the selection
// when it was the current one.
func (v *View) Deleted(id int64) {
	if id == v.sessionID {
		v.sessionID = 0
		v.messages = nil
	}
	kept := make([]models.ClientSession, 0, len(v.sessions))
	for _, s := range v.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	v.sessions = kept
	v.stale = true
}

// CreateSession creates a named session on the server and selects it.
func (v *View) CreateSession(ctx context.Context, name string) (*models.ClientSession, error) {
	if v.state == StateSending {
		return nil, ErrSendInFlight
	}
	session, err := v.api.CreateSession(ctx, name)
	if err != nil {
		return nil, err
	}
	v.Created(*session)
	return session, nil
}

// DeleteSession deletes a session on the server and refreshes the lists.
func (v *View) DeleteSession(ctx context.Context, id int64) error {
	if v.state == StateSending {
		return ErrSendInFlight
	}
	if err := v.api.DeleteSession(ctx, id); err != nil {
		return err
	}
	v.Deleted(id)
	return v.Refresh(ctx)
}

// Submit captures the raw input as an optimistic message and enters Sending.
// It returns the text to send.
func (v *View) Submit() (string, error) {
	if v.state == StateSending {
		return "", ErrSendInFlight
	}
	text := v.input
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	v.pending = &models.ClientMessage{
		ID:        models.OptimisticMessageID,
		SessionID: v.sessionID,
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: v.now().UTC(),
		Pending:   true,
	}
	v.input = ""
	v.state = StateSending
	v.typing = true
	v.lastErr = nil
	return text, nil
}

// Succeeded settles a send with the server result.
func (v *View) Succeeded(result models.SendResult) error {
	if v.state != StateSending {
		return ErrNotSending
	}
	v.pending = nil
	if v.sessionID == 0 {
		v.proposedName = ""
	}
	v.sessionID = result.SessionID
	v.state = StateSettled
	v.stale = true
	v.typingUntil = v.now().Add(TypingGrace)
	return nil
}

// Failed settles a send with an error. The input is not restored.
func (v *View) Failed(err error) error {
	if v.state != StateSending {
		return ErrNotSending
	}
	v.pending = nil
	v.state = StateFailed
	v.typing = false
	v.lastErr = err
	return nil
}

// Snapshot is server state fetched for a view.
type Snapshot struct {
	SessionID int64
	Sessions  []models.ClientSession
	Messages  []models.ClientMessage
}

// Fetch reads the session list and the latest messages of sessionID. It does
// not touch any View, so it is safe to run off the UI goroutine.
func Fetch(ctx context.Context, api API, sessionID int64) (Snapshot, error) {
	snap := Snapshot{SessionID: sessionID}
	sessions, err := api.ListSessions(ctx, 1, 50)
	if err != nil {
		return snap, err
	}
	snap.Sessions = sessions.Items
	if sessionID == 0 {
		return snap, nil
	}
	page, err := api.ListMessages(ctx, sessionID, 1, historyPageSize)
	if err != nil {
		return snap, err
	}
	if page.TotalPages > 1 {
		if page, err = api.ListMessages(ctx, sessionID, page.TotalPages, historyPageSize); err != nil {
			return snap, err
		}
	}
	snap.Messages = page.Items
	return snap, nil
}

// Apply adopts a fetched snapshot. Messages for a session that is no longer
// selected are ignored and the view stays stale.
func (v *View) Apply(snap Snapshot) {
	v.sessions = snap.Sessions
	if snap.SessionID != v.sessionID {
		return
	}
	v.messages = snap.Messages
	v.stale = false
}

// Refresh reloads the session list and the messages of the current session.
func (v *View) Refresh(ctx context.Context) error {
	snap, err := Fetch(ctx, v.api, v.sessionID)
	if err != nil {
		return err
	}
	v.Apply(snap)
	return nil
}

// Send runs a whole submit cycle synchronously. The returned error is the
// send failure, if any; refresh failures after a successful send are returned too.
func (v *View) Send(ctx context.Context) (*models.SendResult, error) {
	text, err := v.Submit()
	if err != nil {
		return nil, err
	}
	result, err := v.api.SendMessage(ctx, text, v.sessionID, v.ProposedName())
	if err != nil {
		_ = v.Failed(err)
		return nil, err
	}
	_ = v.Succeeded(*result)
	if err := v.Refresh(ctx); err != nil {
		return result, err
	}
	return result, nil
}
