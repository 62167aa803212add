package ai

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoGenerator adapts any eino chat model to Generator.
type EinoGenerator struct {
	provider string
	model    model.BaseChatModel
}

func NewEinoGenerator(provider string, chatModel model.BaseChatModel) *EinoGenerator {
	return &EinoGenerator{provider: provider, model: chatModel}
}

func (e *EinoGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	input := []*schema.Message{
		schema.UserMessage(strings.Join(prompt.Segments(), "\n\n")),
	}
	out, err := e.model.Generate(ctx, input,
		model.WithTemperature(Temperature),
		model.WithTopP(TopP),
		model.WithMaxTokens(MaxOutputTokens),
	)
	if err != nil {
		return "", &UpstreamError{Provider: e.provider, Err: err}
	}
	if out == nil {
		return FallbackReply, nil
	}
	return finalizeReply(out.Content), nil
}
