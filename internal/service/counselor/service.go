package counselor

import (
	"context"
	"errors"
	"strings"

	"careerchat/internal/auth"
	"careerchat/internal/models"
	"careerchat/internal/service/ai"

	"github.com/sirupsen/logrus"
)

var (
	ErrValidation = errors.New("message text is required")
	// ErrUpstreamGeneration matches any *GenerationError.
	ErrUpstreamGeneration = errors.New("reply generation failed")
)

// GenerationError wraps a backend failure. The user message is already stored
// when it is returned; the assistant message is not.
type GenerationError struct {
	SessionID int64
	Err       error
}

func (e *GenerationError) Error() string {
	return "generate reply: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrUpstreamGeneration, e.Err}
}

// Store is the persistence the orchestrator drives.
type Store interface {
	MessageReader
	CreateSession(ctx context.Context, userID int64, name string) (*models.Session, error)
	GetSession(ctx context.Context, userID, sessionID int64) (*models.Session, error)
	AppendUserTurn(ctx context.Context, sessionID int64, content string) (*models.Message, error)
	AppendAssistantTurn(ctx context.Context, userID, sessionID int64, content string) (*models.Message, error)
}

type TurnRequest struct {
	Text string
	// SessionID zero means start a new session.
	SessionID int64
	Name      string
}

type TurnResult struct {
	SessionID int64
	Reply     string
}

// Service runs one conversation turn end to end.
type Service struct {
	store     Store
	assembler *Assembler
	generator ai.Generator
	logger    logrus.FieldLogger
}

func NewService(store Store, generator ai.Generator, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:     store,
		assembler: NewAssembler(store),
		generator: generator,
		logger:    logger.WithField("component", "counselor"),
	}
}

// SubmitTurn stores the user's message, asks the model for a reply and stores
// the reply together with the session timestamp bump. It is not idempotent.
func (s *Service) SubmitTurn(ctx context.Context, user auth.CurrentUser, req TurnRequest) (*TurnResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrValidation
	}

	session, err := s.resolveSession(ctx, user, req)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithFields(logrus.Fields{"user_id": user.ID, "session_id": session.ID})

	if _, err := s.store.AppendUserTurn(ctx, session.ID, text); err != nil {
		log.WithError(err).Error("store user message")
		return nil, err
	}

	prompt, err := s.assembler.Assemble(ctx, session.ID)
	if err != nil {
		log.WithError(err).Error("assemble context")
		return nil, err
	}

	reply, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		log.WithError(err).Warn("completion backend failed")
		return nil, &GenerationError{SessionID: session.ID, Err: err}
	}

	if _, err := s.store.AppendAssistantTurn(ctx, user.ID, session.ID, reply); err != nil {
		log.WithError(err).Error("store assistant message")
		return nil, err
	}
	log.WithField("turns", len(prompt.Turns)).Debug("turn completed")
	return &TurnResult{SessionID: session.ID, Reply: reply}, nil
}

func (s *Service) resolveSession(ctx context.Context, user auth.CurrentUser, req TurnRequest) (*models.Session, error) {
	if req.SessionID == 0 {
		return s.store.CreateSession(ctx, user.ID, req.Name)
	}
	return s.store.GetSession(ctx, user.ID, req.SessionID)
}
