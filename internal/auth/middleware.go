package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	currentUserContextKey = "auth_current_user"
	authTokenContextKey   = "auth_token"
)

// Middleware validates bearer or cookie tokens and stores the current user in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		user, err := s.ValidateToken(c.Request.Context(), authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		c.Set(currentUserContextKey, user)
		c.Set(authTokenContextKey, authToken)
		c.Next()
	}
}

// CurrentUserFromContext retrieves the authenticated user from the gin context.
func CurrentUserFromContext(c *gin.Context) (CurrentUser, bool) {
	val, ok := c.Get(currentUserContextKey)
	if !ok {
		return CurrentUser{}, false
	}
	user, ok := val.(CurrentUser)
	return user, ok && user.ID > 0
}

// AuthTokenFromContext retrieves the token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// OptionalMiddleware records the user and token when the request carries a
// valid one and lets every request through.
func (s *Service) OptionalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authToken := s.extractToken(c); authToken != "" {
			if user, err := s.ValidateToken(c.Request.Context(), authToken); err == nil {
				c.Set(currentUserContextKey, user)
				c.Set(authTokenContextKey, authToken)
			}
		}
		c.Next()
	}
}

func (s *Service) extractToken(c *gin.Context) string {
	if token, ok := bearerToken(c.GetHeader(s.headerName)); ok {
		return token
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

// SetAuthCookies writes the session and CSRF cookies.
func (s *Service) SetAuthCookies(c *gin.Context, authToken, csrfToken string) {
	maxAge := int(s.tokenTTL.Seconds())
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookieName,
		Value:    authToken,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   s.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.csrfCookieName,
		Value:    csrfToken,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   s.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearAuthCookies expires both cookies.
func (s *Service) ClearAuthCookies(c *gin.Context) {
	for _, name := range []string{s.cookieName, s.csrfCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   s.secureCookies,
			HttpOnly: name == s.cookieName,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
