// Package auth handles password hashing and the signed session cookie.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session")

// SessionConfig holds the cookie and signing settings
type SessionConfig struct {
	Secret     string
	CookieName string
	MaxAge     time.Duration
	Secure     bool
}

// UserLookup loads the account behind a session
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// SessionManager issues and verifies HS256 session tokens
type SessionManager struct {
	secret     []byte
	cookieName string
	maxAge     time.Duration
	secure     bool
	now        func() time.Time
}

// NewSessionManager creates a SessionManager
func NewSessionManager(cfg SessionConfig) *SessionManager {
	name := cfg.CookieName
	if name == "" {
		name = "session"
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}

	return &SessionManager{
		secret:     []byte(cfg.Secret),
		cookieName: name,
		maxAge:     maxAge,
		secure:     cfg.Secure,
		now:        time.Now,
	}
}

// CookieName returns the name of the session cookie
func (m *SessionManager) CookieName() string {
	return m.cookieName
}

// Issue signs a token for userID
func (m *SessionManager) Issue(userID int64) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return token, nil
}

// Verify checks signature and age and returns the user id
func (m *SessionManager) Verify(token string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidSession
	}
	return userID, nil
}

// SetCookie writes a fresh session cookie for userID
func (m *SessionManager) SetCookie(c *gin.Context, userID int64) error {
	token, err := m.Issue(userID)
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, token, int(m.maxAge.Seconds()), "/", "", m.secure, true)
	return nil
}

// ClearCookie deletes the session cookie
func (m *SessionManager) ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}

// UserID returns the user id carried by the request's session cookie
func (m *SessionManager) UserID(c *gin.Context) (int64, bool) {
	token, err := c.Cookie(m.cookieName)
	if err != nil || token == "" {
		return 0, false
	}

	userID, err := m.Verify(token)
	if err != nil {
		return 0, false
	}
	return userID, true
}

// CurrentUser resolves the logged-in, active user or returns nil
func (m *SessionManager) CurrentUser(c *gin.Context, users UserLookup) *model.User {
	userID, ok := m.UserID(c)
	if !ok {
		return nil
	}

	user, err := users.GetUserByID(c.Request.Context(), userID)
	if err != nil || !user.IsActive {
		return nil
	}
	return user
}
