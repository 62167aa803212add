package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenRequired = errors.New("token required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenRevoked  = errors.New("token revoked")
)

// CurrentUser is the authenticated actor handed to every service call.
type CurrentUser struct {
	ID   int64
	Name string
}

// Claims carried by issued tokens. Subject holds the user id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Service issues, validates, and revokes signed user tokens.
type Service struct {
	secret         []byte
	tokenTTL       time.Duration
	denylist       Denylist
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
	secureCookies  bool
	now            func() time.Time
}

// NewService constructs an auth service. A nil denylist keeps revocations in memory.
func NewService(secret string, ttl time.Duration, denylist Denylist) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if denylist == nil {
		denylist = NewMemoryDenylist()
	}
	return &Service{
		secret:         []byte(secret),
		tokenTTL:       ttl,
		denylist:       denylist,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		secureCookies:  true,
		now:            time.Now,
	}
}

// SetSecureCookies toggles the Secure attribute on issued cookies.
func (s *Service) SetSecureCookies(secure bool) {
	s.secureCookies = secure
}

// IssueToken signs a token for the user and returns it with its expiry.
func (s *Service) IssueToken(user CurrentUser) (string, time.Time, error) {
	if user.ID <= 0 {
		return "", time.Time{}, errors.New("invalid user id")
	}
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies signature, expiry and revocation and returns the user.
func (s *Service) ValidateToken(ctx context.Context, token string) (CurrentUser, error) {
	claims, err := s.parse(token)
	if err != nil {
		return CurrentUser{}, err
	}
	revoked, err := s.denylist.Revoked(ctx, claims.ID)
	if err != nil {
		return CurrentUser{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return CurrentUser{}, ErrTokenRevoked
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return CurrentUser{}, ErrInvalidToken
	}
	return CurrentUser{ID: userID, Name: claims.Name}, nil
}

// RevokeToken denylists the token until it would have expired anyway.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		// Already unusable.
		return nil
	}
	until := s.now().Add(s.tokenTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.denylist.Revoke(ctx, claims.ID, until); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Service) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}
