package counselor

import (
	"context"

	"careerchat/internal/models"
	"careerchat/internal/service/ai"
)

// ContextWindow is how many of the most recent messages are sent to the model.
const ContextWindow = 30

// MessageReader is the slice of the message store the assembler needs.
type MessageReader interface {
	RecentMessages(ctx context.Context, sessionID int64, limit int) ([]models.Message, error)
}

// Assembler builds the completion prompt for a session.
type Assembler struct {
	messages  MessageReader
	directive string
}

func NewAssembler(messages MessageReader) *Assembler {
	return &Assembler{messages: messages, directive: ai.CounselorDirective}
}

// Assemble returns the directive plus the last ContextWindow messages, oldest first.
func (a *Assembler) Assemble(ctx context.Context, sessionID int64) (ai.Prompt, error) {
	recent, err := a.messages.RecentMessages(ctx, sessionID, ContextWindow)
	if err != nil {
		return ai.Prompt{}, err
	}
	turns := make([]ai.Turn, 0, len(recent))
	for _, m := range recent {
		role := ai.RoleUser
		if m.Role == models.RoleAssistant {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Turn{Role: role, Content: m.Content})
	}
	return ai.Prompt{Directive: a.directive, Turns: turns}, nil
}
