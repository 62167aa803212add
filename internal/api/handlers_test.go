package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"careerchat/internal/auth"
	"careerchat/internal/logging"
	"careerchat/internal/models"
	"careerchat/internal/service/account"
	"careerchat/internal/service/ai"
	"careerchat/internal/service/counselor"
	"careerchat/internal/service/history"
	"careerchat/internal/storage/storagetest"
	"careerchat/internal/worker"
)

type stubGenerator struct {
	reply string
	err   error
	calls atomic.Int32
}

func (s *stubGenerator) Generate(context.Context, ai.Prompt) (string, error) {
	s.calls.Add(1)
	return s.reply, s.err
}

type testServer struct {
	router *gin.Engine
	db     *sql.DB
	gen    *stubGenerator
}

var userSeq atomic.Int64

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storagetest.NewSQLite(t)
	logger := logging.Discard()
	store := history.NewService(db, nil, logger)
	gen := &stubGenerator{reply: "Update your resume."}
	authSvc := auth.NewService("test-secret", time.Hour, nil)
	authSvc.SetSecureCookies(false)
	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8}, logger)
	t.Cleanup(dispatcher.Stop)

	handler := NewHandler(
		account.NewService(db),
		authSvc,
		store,
		counselor.NewService(store, gen, logger),
		dispatcher,
		logger,
	)
	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, db: db, gen: gen}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d, body: %s", want, rec.Code, rec.Body.String())
	}
}

func registerAndLogin(t *testing.T, router *gin.Engine) map[string]string {
	t.Helper()
	email := fmt.Sprintf("tester%d@example.com", userSeq.Add(1))
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		Token string `json:"token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.Token == "" {
		t.Fatalf("expected token after login")
	}
	return map[string]string{"Authorization": "Bearer " + loginBody.Token}
}

func sendMessage(t *testing.T, router *gin.Engine, headers map[string]string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONRequest(t, router, http.MethodPost, "/api/messages", body, headers)
}

func TestHandlersEndToEndFlow(t *testing.T) {
	srv := newTestServer(t)
	headers := registerAndLogin(t, srv.router)

	// First message without a session creates one.
	resp := sendMessage(t, srv.router, headers, map[string]any{"message": "How do I become a PM?"})
	assertStatus(t, resp, http.StatusOK)
	var sent models.SendResult
	decodeJSON(t, resp.Body.Bytes(), &sent)
	if sent.SessionID <= 0 || sent.Reply != "Update your resume." {
		t.Fatalf("unexpected send result: %+v", sent)
	}

	// Follow-up on the same session.
	resp = sendMessage(t, srv.router, headers, map[string]any{"message": "And then?", "sessionId": sent.SessionID})
	assertStatus(t, resp, http.StatusOK)

	resp = doJSONRequest(t, srv.router, http.MethodGet, fmt.Sprintf("/api/sessions/%d/messages?page=1&pageSize=3", sent.SessionID), nil, headers)
	assertStatus(t, resp, http.StatusOK)
	var msgs models.Page[models.ClientMessage]
	decodeJSON(t, resp.Body.Bytes(), &msgs)
	if msgs.Total != 4 || msgs.TotalPages != 2 || len(msgs.Items) != 3 {
		t.Fatalf("unexpected message page: %+v", msgs)
	}
	if msgs.Items[0].Role != models.RoleUser || msgs.Items[0].Content != "How do I become a PM?" {
		t.Fatalf("unexpected first message: %+v", msgs.Items[0])
	}

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/sessions", map[string]string{"name": "Salary talk"}, headers)
	assertStatus(t, resp, http.StatusCreated)
	var created models.ClientSession
	decodeJSON(t, resp.Body.Bytes(), &created)
	if created.Name != "Salary talk" {
		t.Fatalf("unexpected session: %+v", created)
	}

	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/sessions", nil, headers)
	assertStatus(t, resp, http.StatusOK)
	var sessions models.Page[models.ClientSession]
	decodeJSON(t, resp.Body.Bytes(), &sessions)
	if sessions.Total != 2 || sessions.PageSize != history.DefaultSessionPageSize {
		t.Fatalf("unexpected session page: %+v", sessions)
	}
	if sessions.Items[0].ID != created.ID {
		t.Fatalf("expected newest session first, got %+v", sessions.Items)
	}

	resp = doJSONRequest(t, srv.router, http.MethodDelete, fmt.Sprintf("/api/sessions/%d", sent.SessionID), nil, headers)
	assertStatus(t, resp, http.StatusOK)
	var deleted struct {
		Success bool `json:"success"`
	}
	decodeJSON(t, resp.Body.Bytes(), &deleted)
	if !deleted.Success {
		t.Fatalf("expected success on delete")
	}
	if n := storagetest.Count(t, srv.db, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sent.SessionID); n != 0 {
		t.Fatalf("expected messages removed, found %d", n)
	}
}

func TestOwnershipIsForbiddenEverywhere(t *testing.T) {
	srv := newTestServer(t)
	owner := registerAndLogin(t, srv.router)
	intruder := registerAndLogin(t, srv.router)

	resp := sendMessage(t, srv.router, owner, map[string]any{"message": "private"})
	assertStatus(t, resp, http.StatusOK)
	var sent models.SendResult
	decodeJSON(t, resp.Body.Bytes(), &sent)

	for _, id := range []int64{sent.SessionID, sent.SessionID + 1000} {
		resp = doJSONRequest(t, srv.router, http.MethodGet, fmt.Sprintf("/api/sessions/%d/messages", id), nil, intruder)
		assertStatus(t, resp, http.StatusForbidden)

		resp = sendMessage(t, srv.router, intruder, map[string]any{"message": "hi", "sessionId": id})
		assertStatus(t, resp, http.StatusForbidden)

		resp = doJSONRequest(t, srv.router, http.MethodDelete, fmt.Sprintf("/api/sessions/%d", id), nil, intruder)
		assertStatus(t, resp, http.StatusForbidden)
	}

	if n := storagetest.Count(t, srv.db, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sent.SessionID); n != 2 {
		t.Fatalf("intruder altered the session: %d messages", n)
	}
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	srv := newTestServer(t)
	headers := registerAndLogin(t, srv.router)

	srv.gen.err = &ai.UpstreamError{Provider: "gemini", StatusCode: http.StatusInternalServerError, Body: "oops"}
	resp := sendMessage(t, srv.router, headers, map[string]any{"message": "hello"})
	assertStatus(t, resp, http.StatusBadGateway)

	if n := storagetest.Count(t, srv.db, `SELECT COUNT(*) FROM messages WHERE role = 'USER'`); n != 1 {
		t.Fatalf("expected the user message kept, got %d", n)
	}
	if n := storagetest.Count(t, srv.db, `SELECT COUNT(*) FROM messages WHERE role = 'ASSISTANT'`); n != 0 {
		t.Fatalf("expected no assistant message, got %d", n)
	}

	srv.gen.err = fmt.Errorf("%w: missing key", ai.ErrConfiguration)
	resp = sendMessage(t, srv.router, headers, map[string]any{"message": "hello"})
	assertStatus(t, resp, http.StatusServiceUnavailable)
}

func TestSendMessageValidation(t *testing.T) {
	srv := newTestServer(t)
	headers := registerAndLogin(t, srv.router)

	resp := sendMessage(t, srv.router, headers, map[string]any{"message": "   "})
	assertStatus(t, resp, http.StatusBadRequest)
	resp = sendMessage(t, srv.router, headers, map[string]any{"message": "x", "sessionId": -4})
	assertStatus(t, resp, http.StatusBadRequest)
	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/sessions?page=abc", nil, headers)
	assertStatus(t, resp, http.StatusBadRequest)
	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/sessions?pageSize=51", nil, headers)
	assertStatus(t, resp, http.StatusBadRequest)
	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/sessions?page=9223372036854775807&pageSize=10", nil, headers)
	assertStatus(t, resp, http.StatusBadRequest)
	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/sessions/abc/messages", nil, headers)
	assertStatus(t, resp, http.StatusBadRequest)

	if srv.gen.calls.Load() != 0 {
		t.Fatalf("backend should not be called for invalid input")
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/sessions", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
	resp = sendMessage(t, srv.router, nil, map[string]any{"message": "hi"})
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestCookieAuthAndLogout(t *testing.T) {
	srv := newTestServer(t)
	email := "cookie@example.com"
	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": "secret1", "name": "Cookie"}, nil)
	assertStatus(t, resp, http.StatusCreated)
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": "secret1"}, nil)
	assertStatus(t, resp, http.StatusConflict)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "nope-nope"}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "secret1"}, nil)
	assertStatus(t, resp, http.StatusOK)
	var authCookie, csrfCookie *http.Cookie
	for _, ck := range resp.Result().Cookies() {
		switch ck.Name {
		case "auth_token":
			authCookie = ck
		case "csrf_token":
			csrfCookie = ck
		}
	}
	if authCookie == nil || csrfCookie == nil || !authCookie.HttpOnly {
		t.Fatalf("expected auth and csrf cookies, got %v", resp.Result().Cookies())
	}

	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/auth/me", nil, nil, authCookie)
	assertStatus(t, resp, http.StatusOK)
	var me struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	decodeJSON(t, resp.Body.Bytes(), &me)
	if me.Email != email || me.Name != "Cookie" {
		t.Fatalf("unexpected me: %+v", me)
	}

	// Cookie-authenticated writes need the CSRF header.
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/sessions", map[string]string{"name": "x"}, nil, authCookie, csrfCookie)
	assertStatus(t, resp, http.StatusForbidden)
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/sessions", map[string]string{"name": "x"},
		map[string]string{"X-CSRF-Token": csrfCookie.Value}, authCookie, csrfCookie)
	assertStatus(t, resp, http.StatusCreated)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/auth/logout", nil, nil, authCookie)
	assertStatus(t, resp, http.StatusOK)
	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/auth/me", nil, nil, authCookie)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestClassifyErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{counselor.ErrValidation, http.StatusBadRequest},
		{history.ErrInvalidPage, http.StatusBadRequest},
		{history.ErrForbidden, http.StatusForbidden},
		{&counselor.GenerationError{Err: ai.ErrConfiguration}, http.StatusServiceUnavailable},
		{&counselor.GenerationError{Err: &ai.UpstreamError{StatusCode: 500}}, http.StatusBadGateway},
		{worker.ErrDispatcherBusy, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: disk full", history.ErrPersistence), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if status, _, _ := classify(tc.err); status != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, status)
		}
	}
}
