package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/chickenify/internal/domain"
	"github.com/cuongbtq/chickenify/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))

	_, err = HashPassword("")
	assert.ErrorIs(t, err, ErrPasswordEmpty)

	_, err = HashPassword(strings.Repeat("a", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.False(t, CheckPassword(hash, strings.Repeat("a", MaxPasswordBytes+1)))
}

func newTestManager(now time.Time) *SessionManager {
	m := NewSessionManager(SessionConfig{Secret: "test-secret", MaxAge: time.Hour})
	m.now = func() time.Time { return now }
	return m
}

func TestSession_IssueVerify(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(now)

	token, err := m.Issue(42)
	require.NoError(t, err)

	userID, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	t.Run("expired", func(t *testing.T) {
		m.now = func() time.Time { return now.Add(2 * time.Hour) }
		defer func() { m.now = func() time.Time { return now } }()

		_, err := m.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidSession)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := newTestManager(now)
		other.secret = []byte("another-secret")
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := m.Verify(token + "x")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Verify(unsigned)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})
}

type fakeUsers map[int64]*model.User

func (f fakeUsers) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, domain.ErrUserNotFound
}

func TestSession_CurrentUser(t *testing.T) {
	m := NewSessionManager(SessionConfig{Secret: "test-secret"})
	users := fakeUsers{
		1: {ID: 1, Email: "a@example.com", IsActive: true},
		2: {ID: 2, Email: "b@example.com", IsActive: false},
	}

	requestWith := func(t *testing.T, cookie *http.Cookie) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if cookie != nil {
			c.Request.AddCookie(cookie)
		}
		return c
	}
	cookieFor := func(t *testing.T, userID int64) *http.Cookie {
		token, err := m.Issue(userID)
		require.NoError(t, err)
		return &http.Cookie{Name: "session", Value: token}
	}

	assert.Nil(t, m.CurrentUser(requestWith(t, nil), users), "no cookie")
	assert.Nil(t, m.CurrentUser(requestWith(t, &http.Cookie{Name: "session", Value: "garbage"}), users))
	assert.Nil(t, m.CurrentUser(requestWith(t, cookieFor(t, 2)), users), "inactive")
	assert.Nil(t, m.CurrentUser(requestWith(t, cookieFor(t, 9)), users), "unknown")

	got := m.CurrentUser(requestWith(t, cookieFor(t, 1)), users)
	require.NotNil(t, got)
	assert.Equal(t, "a@example.com", got.Email)
}

func TestSession_Cookies(t *testing.T) {
	m := NewSessionManager(SessionConfig{Secret: "test-secret", MaxAge: 24 * time.Hour})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/login", nil)
	require.NoError(t, m.SetCookie(c, 7))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 86400, cookies[0].MaxAge)

	userID, err := m.Verify(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/logout", nil)
	m.ClearCookie(c)

	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}
