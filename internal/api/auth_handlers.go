package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"careerchat/internal/auth"
	"careerchat/internal/models"
	"careerchat/internal/service/account"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func userBody(user *models.User) gin.H {
	return gin.H{
		"id":        user.ID,
		"email":     user.Email,
		"name":      user.Name,
		"createdAt": user.CreatedAt,
	}
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrInvalidInput):
			badRequest(c, err.Error())
		case errors.Is(err, account.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "user with this email already exists", "code": "CONFLICT"})
		default:
			h.writeError(c, err)
		}
		return
	}
	c.JSON(http.StatusCreated, userBody(user))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password", "code": "UNAUTHORIZED"})
			return
		}
		h.writeError(c, err)
		return
	}
	authToken, expiresAt, err := h.auth.IssueToken(auth.CurrentUser{ID: user.ID, Name: user.Name})
	if err != nil {
		h.writeError(c, err)
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.auth.SetAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"user":      userBody(user),
		"token":     authToken,
		"csrfToken": csrfToken,
		"expiresAt": expiresAt,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
			h.logger.WithError(err).Warn("revoke token on logout")
		}
	}
	h.auth.ClearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) me(c *gin.Context) {
	current, ok := h.currentUser(c)
	if !ok {
		return
	}
	user, err := h.accounts.Get(c.Request.Context(), current.ID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required", "code": "UNAUTHORIZED"})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userBody(user))
}
