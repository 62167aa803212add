package history

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"time"

	"careerchat/internal/models"
	"careerchat/internal/redis"

	"github.com/sirupsen/logrus"
)

// DefaultSessionName is used when a session is created without a name.
const DefaultSessionName = "Career Counseling Session"

const (
	DefaultSessionPageSize = 10
	MaxSessionPageSize     = 50
	DefaultMessagePageSize = 20
	MaxMessagePageSize     = 100
)

// Service persists sessions and their messages.
type Service struct {
	db     *sql.DB
	cache  *redis.Client
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService builds the store. cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		db:     db,
		cache:  cache,
		logger: logger.WithField("component", "history"),
		now:    func() time.Time { return time.Now() },
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// CreateSession inserts a new session for the given user and returns the record.
func (s *Service) CreateSession(ctx context.Context, userID int64, name string) (*models.Session, error) {
	if userID <= 0 {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSessionName
	}
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, name, now, now,
	)
	if err != nil {
		return nil, persistence(err, "create session")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, persistence(err, "session id")
	}
	s.invalidate(ctx, userID)
	return &models.Session{ID: id, UserID: userID, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetSession loads a session owned by userID.
func (s *Service) GetSession(ctx context.Context, userID, sessionID int64) (*models.Session, error) {
	if sessionID <= 0 {
		return nil, ErrForbidden
	}
	var session models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&session.ID, &session.UserID, &session.Name, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, persistence(err, "get session")
	}
	if session.UserID != userID {
		return nil, ErrForbidden
	}
	return &session, nil
}

// ListSessions returns a page of the user's sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, userID int64, page, pageSize int) (models.Page[models.ClientSession], error) {
	page, pageSize, err := normalizePage(page, pageSize, DefaultSessionPageSize, MaxSessionPageSize)
	if err != nil {
		return models.Page[models.ClientSession]{}, err
	}
	gen, cached, hit := s.cachedSessions(ctx, userID, page, pageSize)
	if hit {
		return cached, nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return models.Page[models.ClientSession]{}, persistence(err, "count sessions")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM sessions
		 WHERE user_id = ? ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return models.Page[models.ClientSession]{}, persistence(err, "list sessions")
	}
	defer rows.Close()

	items := make([]models.ClientSession, 0, pageSize)
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(&session.ID, &session.UserID, &session.Name, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return models.Page[models.ClientSession]{}, persistence(err, "scan session")
		}
		items = append(items, session.Client())
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.ClientSession]{}, persistence(err, "iterate sessions")
	}

	result := models.NewPage(items, total, page, pageSize)
	s.storeSessions(ctx, userID, gen, result)
	return result, nil
}

// ListMessages returns a page of a session's messages in conversation order.
func (s *Service) ListMessages(ctx context.Context, userID, sessionID int64, page, pageSize int) (models.Page[models.ClientMessage], error) {
	page, pageSize, err := normalizePage(page, pageSize, DefaultMessagePageSize, MaxMessagePageSize)
	if err != nil {
		return models.Page[models.ClientMessage]{}, err
	}
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return models.Page[models.ClientMessage]{}, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&total); err != nil {
		return models.Page[models.ClientMessage]{}, persistence(err, "count messages")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`,
		sessionID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return models.Page[models.ClientMessage]{}, persistence(err, "list messages")
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return models.Page[models.ClientMessage]{}, err
	}
	items := make([]models.ClientMessage, 0, len(messages))
	for i := range messages {
		items = append(items, messages[i].Client())
	}
	return models.NewPage(items, total, page, pageSize), nil
}

// RecentMessages returns up to limit of the latest messages of a session in
// ascending order. Callers are expected to have checked ownership.
func (s *Service) RecentMessages(ctx context.Context, sessionID int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, persistence(err, "recent messages")
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AppendUserTurn stores a USER message. The session timestamp is left alone.
func (s *Service) AppendUserTurn(ctx context.Context, sessionID int64, content string) (*models.Message, error) {
	now := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, models.RoleUser, content, now,
	)
	if err != nil {
		return nil, persistence(err, "insert user message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, persistence(err, "message id")
	}
	return &models.Message{ID: id, SessionID: sessionID, Role: models.RoleUser, Content: content, CreatedAt: now}, nil
}

// AppendAssistantTurn stores an ASSISTANT message and advances the session's
// updated_at in one transaction. updated_at strictly increases on every call.
func (s *Service) AppendAssistantTurn(ctx context.Context, userID, sessionID int64, content string) (msg *models.Message, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence(err, "begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := s.timestamp()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, models.RoleAssistant, content, now,
	)
	if err != nil {
		return nil, persistence(err, "insert assistant message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, persistence(err, "message id")
	}

	var prev time.Time
	if err = tx.QueryRowContext(ctx,
		`SELECT updated_at FROM sessions WHERE id = ?`, sessionID,
	).Scan(&prev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, persistence(err, "read session timestamp")
	}
	next := now
	if !next.After(prev) {
		next = prev.Add(time.Microsecond)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, next, sessionID,
	); err != nil {
		return nil, persistence(err, "touch session")
	}
	if err = tx.Commit(); err != nil {
		return nil, persistence(err, "commit assistant turn")
	}

	s.invalidate(ctx, userID)
	return &models.Message{ID: id, SessionID: sessionID, Role: models.RoleAssistant, Content: content, CreatedAt: now}, nil
}

// DeleteSession removes a session and all of its messages.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID int64) (err error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(err, "begin tx")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return persistence(err, "delete messages")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return persistence(err, "delete session")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence(err, "session rows affected")
	}
	if affected == 0 {
		return ErrForbidden
	}
	if err = tx.Commit(); err != nil {
		return persistence(err, "commit delete session")
	}
	s.invalidate(ctx, userID)
	return nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, persistence(err, "scan message")
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(err, "iterate messages")
	}
	return messages, nil
}

// normalizePage applies defaults to zero values and rejects anything out of range.
func normalizePage(page, pageSize, defaultSize, maxSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = defaultSize
	}
	if page < 1 || pageSize < 1 || pageSize > maxSize {
		return 0, 0, ErrInvalidPage
	}
	// The row offset must not overflow.
	if page > math.MaxInt/pageSize {
		return 0, 0, ErrInvalidPage
	}
	return page, pageSize, nil
}
