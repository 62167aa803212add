package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1"
	DefaultGeminiModel   = "gemini-2.5-flash"

	maxErrorBody = 2048
)

// GeminiClient calls the generateContent REST endpoint directly.
type GeminiClient struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

func NewGeminiClient(baseURL, modelName, apiKey string) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return &GeminiClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      modelName,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopK            int32   `json:"topK"`
	TopP            float32 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

func (g *GeminiClient) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if strings.TrimSpace(g.APIKey) == "" {
		return "", fmt.Errorf("%w: gemini api key missing", ErrConfiguration)
	}

	segments := prompt.Segments()
	parts := make([]geminiPart, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, geminiPart{Text: s})
	}
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     Temperature,
			TopK:            TopK,
			TopP:            TopP,
			MaxOutputTokens: MaxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.BaseURL, g.Model, url.QueryEscape(g.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &UpstreamError{Provider: "gemini", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(payload)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return "", &UpstreamError{Provider: "gemini", StatusCode: resp.StatusCode, Body: text}
	}

	var reply strings.Builder
	for _, part := range gjson.GetBytes(payload, "candidates.0.content.parts.#.text").Array() {
		reply.WriteString(part.String())
	}
	return finalizeReply(reply.String()), nil
}
