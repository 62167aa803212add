package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"careerchat/internal/auth"
	"careerchat/internal/service/account"
	"careerchat/internal/service/counselor"
	"careerchat/internal/service/history"
)

// TurnRunner executes a turn on behalf of a user, e.g. on the worker dispatcher.
type TurnRunner interface {
	Do(ctx context.Context, userID int64, fn func(context.Context) error) error
}

type inlineRunner struct{}

func (inlineRunner) Do(ctx context.Context, _ int64, fn func(context.Context) error) error {
	return fn(ctx)
}

// Handler wires HTTP routes to the account, history and counselor services.
type Handler struct {
	accounts  *account.Service
	auth      *auth.Service
	history   *history.Service
	counselor *counselor.Service
	turns     TurnRunner
	logger    logrus.FieldLogger
}

// NewHandler constructs a Handler. A nil runner executes turns on the request goroutine.
func NewHandler(accounts *account.Service, authService *auth.Service, store *history.Service, counselorService *counselor.Service, runner TurnRunner, logger logrus.FieldLogger) *Handler {
	if runner == nil {
		runner = inlineRunner{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		accounts:  accounts,
		auth:      authService,
		history:   store,
		counselor: counselorService,
		turns:     runner,
		logger:    logger.WithField("component", "api"),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", h.register)
	authRoutes.POST("/login", h.login)
	authRoutes.POST("/logout", h.auth.OptionalMiddleware(), h.logout)
	authRoutes.GET("/me", h.auth.Middleware(), h.me)

	chat := api.Group("")
	chat.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	chat.POST("/sessions", h.createSession)
	chat.GET("/sessions", h.listSessions)
	chat.GET("/sessions/:id/messages", h.getMessages)
	chat.DELETE("/sessions/:id", h.deleteSession)
	chat.POST("/messages", h.sendMessage)
}

func (h *Handler) currentUser(c *gin.Context) (auth.CurrentUser, bool) {
	user, ok := auth.CurrentUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required", "code": "UNAUTHORIZED"})
		return auth.CurrentUser{}, false
	}
	return user, true
}

type createSessionRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createSession(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	session, err := h.history.CreateSession(c.Request.Context(), user.ID, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session.Client())
}

func (h *Handler) listSessions(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	page, pageSize, ok := pageQuery(c)
	if !ok {
		return
	}
	result, err := h.history.ListSessions(c.Request.Context(), user.ID, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getMessages(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	page, pageSize, ok := pageQuery(c)
	if !ok {
		return
	}
	result, err := h.history.ListMessages(c.Request.Context(), user.ID, sessionID, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) deleteSession(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	if err := h.history.DeleteSession(c.Request.Context(), user.ID, sessionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type sendMessageRequest struct {
	Message   string `json:"message"`
	SessionID *int64 `json:"sessionId"`
	Name      string `json:"name"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	turn := counselor.TurnRequest{Text: req.Message, Name: req.Name}
	if req.SessionID != nil {
		if *req.SessionID <= 0 {
			badRequest(c, "invalid session id")
			return
		}
		turn.SessionID = *req.SessionID
	}

	var result *counselor.TurnResult
	err := h.turns.Do(c.Request.Context(), user.ID, func(ctx context.Context) error {
		res, err := h.counselor.SubmitTurn(ctx, user, turn)
		result = res
		return err
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": result.SessionID, "reply": result.Reply})
}

func sessionParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid session id")
		return 0, false
	}
	return id, true
}

// pageQuery reads page and pageSize; absent values are zero and take the store defaults.
func pageQuery(c *gin.Context) (int, int, bool) {
	values := [2]int{}
	for i, key := range []string{"page", "pageSize"} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "invalid "+key)
			return 0, 0, false
		}
		values[i] = n
	}
	return values[0], values[1], true
}
