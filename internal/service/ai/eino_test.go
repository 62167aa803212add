package ai

import (
	"context"
	"errors"
	"testing"

	"careerchat/internal/config"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

type fakeChatModel struct {
	reply   *schema.Message
	err     error
	input   []*schema.Message
	options *model.Options
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.input = input
	f.options = model.GetCommonOptions(nil, opts...)
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not used")
}

func TestEinoGeneratorSingleShot(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage(" Try a portfolio. ", nil)}
	gen := NewEinoGenerator("openai", fake)

	reply, err := gen.Generate(context.Background(), samplePrompt())
	require.NoError(t, err)
	require.Equal(t, "Try a portfolio.", reply)

	require.Len(t, fake.input, 1)
	require.Equal(t, schema.User, fake.input[0].Role)
	require.Contains(t, fake.input[0].Content, CounselorDirective+"\n\nUSER: How do I switch")
	require.NotNil(t, fake.options.Temperature)
	require.InDelta(t, 0.4, *fake.options.Temperature, 1e-6)
	require.NotNil(t, fake.options.TopP)
	require.NotNil(t, fake.options.MaxTokens)
	require.Equal(t, MaxOutputTokens, *fake.options.MaxTokens)
}

func TestEinoGeneratorErrorsAndFallback(t *testing.T) {
	gen := NewEinoGenerator("claude", &fakeChatModel{err: errors.New("overloaded")})
	_, err := gen.Generate(context.Background(), samplePrompt())
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, "claude", upstream.Provider)

	gen = NewEinoGenerator("openai", &fakeChatModel{reply: schema.AssistantMessage("   ", nil)})
	reply, err := gen.Generate(context.Background(), samplePrompt())
	require.NoError(t, err)
	require.Equal(t, FallbackReply, reply)
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()

	gen, err := New(ctx, &config.Config{
		Completion: config.CompletionConfig{Provider: "gemini"},
		Providers:  map[string]config.ProviderConfig{"gemini": {APIKey: "k"}},
	})
	require.NoError(t, err)
	require.IsType(t, &GeminiClient{}, gen)

	gen, err = New(ctx, &config.Config{
		Completion: config.CompletionConfig{Provider: "openai"},
		Providers:  map[string]config.ProviderConfig{"openai": {APIKey: "k", Model: "gpt-4o-mini"}},
	})
	require.NoError(t, err)
	require.IsType(t, &EinoGenerator{}, gen)

	gen, err = New(ctx, &config.Config{Completion: config.CompletionConfig{Provider: "claude"}})
	require.NoError(t, err)
	_, err = gen.Generate(ctx, samplePrompt())
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = New(ctx, &config.Config{Completion: config.CompletionConfig{Provider: "llama"}})
	require.Error(t, err)
}
