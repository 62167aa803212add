package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"careerchat/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// HTTPClient talks to the careerchat HTTP API. After Login it authenticates
// with the bearer token returned by the server.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewHTTPClient creates a client for the server at baseURL, e.g. http://localhost:8090.
func NewHTTPClient(baseURL string) (*HTTPClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: 2 * time.Minute},
	}, nil
}

// Register creates an account. An empty name lets the server pick one.
func (c *HTTPClient) Register(ctx context.Context, email, password, name string) error {
	body := map[string]string{"email": email, "password": password, "name": name}
	return c.do(ctx, http.MethodPost, "/api/auth/register", body, nil)
}

// Login authenticates and keeps the issued token for later calls.
func (c *HTTPClient) Login(ctx context.Context, email, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return err
	}
	if resp.Token == "" {
		return fmt.Errorf("login response carried no token")
	}
	c.token = resp.Token
	return nil
}

// Logout revokes the current token.
func (c *HTTPClient) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.token = ""
	return err
}

func (c *HTTPClient) CreateSession(ctx context.Context, name string) (*models.ClientSession, error) {
	var session models.ClientSession
	if err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"name": name}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *HTTPClient) ListSessions(ctx context.Context, page, pageSize int) (*models.Page[models.ClientSession], error) {
	var out models.Page[models.ClientSession]
	path := "/api/sessions" + pageParams(page, pageSize)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListMessages(ctx context.Context, sessionID int64, page, pageSize int) (*models.Page[models.ClientMessage], error) {
	var out models.Page[models.ClientMessage]
	path := fmt.Sprintf("/api/sessions/%d/messages", sessionID) + pageParams(page, pageSize)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteSession(ctx context.Context, sessionID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/sessions/%d", sessionID), nil, nil)
}

// SendMessage posts one user turn. A zero sessionID asks the server to create a session.
func (c *HTTPClient) SendMessage(ctx context.Context, text string, sessionID int64, name string) (*models.SendResult, error) {
	body := map[string]any{"message": text}
	if sessionID > 0 {
		body["sessionId"] = sessionID
	}
	if name != "" {
		body["name"] = name
	}
	var out models.SendResult
	if err := c.do(ctx, http.MethodPost, "/api/messages", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageParams(page, pageSize int) string {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if pageSize > 0 {
		q.Set("pageSize", fmt.Sprint(pageSize))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
