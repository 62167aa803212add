package ai

import (
	"context"
	"strings"
)

// CounselorDirective is sent ahead of every conversation. It is never stored.
const CounselorDirective = "You are an experienced AI Career Counselor. Provide actionable, empathetic, and practical guidance on careers, skills, resumes, job search strategy, interview preparation, and growth planning. Ask clarifying questions when needed and keep responses concise but thorough."

// FallbackReply stands in for a successful response that carried no text.
const FallbackReply = "I’m sorry, I couldn’t generate a response right now."

// Generation parameters shared by every backend.
const (
	Temperature     float32 = 0.4
	TopK            int32   = 32
	TopP            float32 = 0.95
	MaxOutputTokens         = 1024
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role
	Content string
}

// Prompt is one single-shot completion request: a directive followed by turns.
type Prompt struct {
	Directive string
	Turns     []Turn
}

// Segments renders the prompt as labeled text parts, directive first.
func (p Prompt) Segments() []string {
	out := make([]string, 0, len(p.Turns)+1)
	out = append(out, p.Directive)
	for _, t := range p.Turns {
		out = append(out, strings.ToUpper(string(t.Role))+": "+t.Content)
	}
	return out
}

// Generator turns a prompt into reply text.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

func finalizeReply(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackReply
	}
	return text
}
