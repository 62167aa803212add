package ai

import (
	"context"
	"fmt"
	"strings"

	"careerchat/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// Provider names accepted in completion.provider.
const (
	ProviderGemini     = "gemini"
	ProviderEinoGemini = "eino-gemini"
	ProviderOpenAI     = "openai"
	ProviderClaude     = "claude"
)

// New builds the generator selected by cfg.Completion.Provider. A provider
// without an API key still yields a generator; it fails every call with ErrConfiguration.
func New(ctx context.Context, cfg *config.Config) (Generator, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Completion.Provider))
	if name == "" {
		name = ProviderGemini
	}
	switch name {
	case ProviderGemini, ProviderEinoGemini, ProviderOpenAI, ProviderClaude:
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", name)
	}
	lookup := name
	if name == ProviderEinoGemini {
		lookup = ProviderGemini
	}
	provCfg := cfg.Providers[lookup]
	if strings.TrimSpace(provCfg.APIKey) == "" {
		return unconfigured{provider: name}, nil
	}

	if name == ProviderGemini {
		return NewGeminiClient(provCfg.BaseURL, provCfg.Model, provCfg.APIKey), nil
	}
	chatModel, err := newChatModel(ctx, name, provCfg)
	if err != nil {
		return nil, err
	}
	return NewEinoGenerator(name, chatModel), nil
}

func newChatModel(ctx context.Context, name string, provCfg config.ProviderConfig) (model.BaseChatModel, error) {
	switch name {
	case ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case ProviderEinoGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		modelName := provCfg.Model
		if modelName == "" {
			modelName = DefaultGeminiModel
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case ProviderClaude:
		var baseURL *string
		if provCfg.BaseURL != "" {
			baseURL = &provCfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURL,
			MaxTokens: MaxOutputTokens,
		})
	}
	return nil, fmt.Errorf("unsupported completion provider: %s", name)
}

type unconfigured struct {
	provider string
}

func (u unconfigured) Generate(context.Context, Prompt) (string, error) {
	return "", fmt.Errorf("%w: no api key for %s", ErrConfiguration, u.provider)
}
