package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func samplePrompt() Prompt {
	return Prompt{
		Directive: CounselorDirective,
		Turns: []Turn{
			{Role: RoleUser, Content: "How do I switch to data science?"},
			{Role: RoleAssistant, Content: "What is your background?"},
			{Role: RoleUser, Content: "Accounting."},
		},
	}
}

func TestPromptSegments(t *testing.T) {
	segments := samplePrompt().Segments()
	require.Equal(t, []string{
		CounselorDirective,
		"USER: How do I switch to data science?",
		"ASSISTANT: What is your background?",
		"USER: Accounting.",
	}, segments)
}

func TestGeminiGenerateSendsSegmentsAndParams(t *testing.T) {
	var (
		captured []byte
		path     string
		key      string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.URL.Query().Get("key")
		captured, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{
					map[string]any{"text": "  Start with "},
					map[string]any{"text": "statistics.  "},
				}}},
			},
		})
	}))
	defer srv.Close()

	client := NewGeminiClient(srv.URL, "", "k3y")
	reply, err := client.Generate(context.Background(), samplePrompt())
	require.NoError(t, err)
	require.Equal(t, "Start with statistics.", reply)
	require.Equal(t, "/models/gemini-2.5-flash:generateContent", path)
	require.Equal(t, "k3y", key)

	body := gjson.ParseBytes(captured)
	require.Equal(t, "user", body.Get("contents.0.role").String())
	require.Equal(t, CounselorDirective, body.Get("contents.0.parts.0.text").String())
	require.Equal(t, "USER: Accounting.", body.Get("contents.0.parts.3.text").String())
	require.Len(t, body.Get("contents").Array(), 1)
	require.InDelta(t, 0.4, body.Get("generationConfig.temperature").Float(), 1e-6)
	require.EqualValues(t, 32, body.Get("generationConfig.topK").Int())
	require.InDelta(t, 0.95, body.Get("generationConfig.topP").Float(), 1e-6)
	require.EqualValues(t, 1024, body.Get("generationConfig.maxOutputTokens").Int())
}

func TestGeminiEmptyReplyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	reply, err := NewGeminiClient(srv.URL, "", "k").Generate(context.Background(), samplePrompt())
	require.NoError(t, err)
	require.Equal(t, FallbackReply, reply)
}

func TestGeminiUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"quota"}`)
	}))
	defer srv.Close()

	_, err := NewGeminiClient(srv.URL, "", "k").Generate(context.Background(), samplePrompt())
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	require.Contains(t, upstream.Body, "quota")
}

func TestGeminiMissingKey(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewGeminiClient(srv.URL, "", " ").Generate(context.Background(), samplePrompt())
	require.ErrorIs(t, err, ErrConfiguration)
	require.False(t, called)
}
