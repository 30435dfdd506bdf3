package authentication

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/testdb"
)

func testUser() *users.User {
	return &users.User{ID: uuid.New(), Username: "walker", Email: "walker@example.com"}
}

func TestIssueAndParse(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, 24*time.Hour, nil)
	u := testUser()

	pair, err := m.Issue(u)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	claims, err := m.Parse(context.Background(), pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, u.Username, claims.Username)
	assert.NotEmpty(t, claims.Id)

	_, err = m.Parse(context.Background(), pair.AccessToken, TokenRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	refresh, err := m.Parse(context.Background(), pair.RefreshToken, TokenRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, claims.Id, refresh.Id)
}

func TestParseRejectsForeignAndExpired(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, time.Hour, nil)
	other := NewTokenManager("other-secret", time.Hour, time.Hour, nil)
	u := testUser()

	pair, err := other.Issue(u)
	require.NoError(t, err)
	_, err = m.Parse(context.Background(), pair.AccessToken, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	pair, err = m.Issue(u)
	require.NoError(t, err)
	m.now = time.Now
	_, err = m.Parse(context.Background(), pair.AccessToken, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse(context.Background(), "not-a-token", TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, time.Hour, NewMemoryBlocklist())
	pair, err := m.Issue(testUser())
	require.NoError(t, err)

	claims, err := m.Parse(context.Background(), pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	require.NoError(t, m.Revoke(context.Background(), claims))

	_, err = m.Parse(context.Background(), pair.AccessToken, TokenAccess)
	assert.ErrorIs(t, err, ErrRevokedToken)

	// refresh token той же пары не отозван
	_, err = m.Parse(context.Background(), pair.RefreshToken, TokenRefresh)
	assert.NoError(t, err)
}

func TestMemoryBlocklistExpires(t *testing.T) {
	b := NewMemoryBlocklist()
	ctx := context.Background()
	require.NoError(t, b.Revoke(ctx, "a", time.Hour))
	require.NoError(t, b.Revoke(ctx, "b", -time.Second))

	revoked, err := b.IsRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = b.IsRevoked(ctx, "b")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestValidateToken(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, time.Hour, nil)
	store := sessions.NewCookieStore([]byte("session-secret"))
	h := New(nil, m, store, zap.NewNop())
	u := testUser()
	pair, err := m.Issue(u)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	claims, err := h.ValidateToken(r)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	r = httptest.NewRequest(http.MethodGet, "/ws?token="+pair.AccessToken, nil)
	claims, err = h.ValidateToken(r)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	_, err = h.ValidateToken(r)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = h.ValidateToken(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoCredential)
}

func sessionRequest(t *testing.T, h *Handler, userID string) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	h.saveSession(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil), userID)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	r := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestValidateTokenFallsBackToSession(t *testing.T) {
	db := testdb.Open(t)
	u := testdb.CreateUser(t, db, "walker")
	store := sessions.NewCookieStore([]byte("session-secret"))
	h := New(db, NewTokenManager("secret", time.Hour, time.Hour, nil), store, zap.NewNop())

	r := sessionRequest(t, h, u.ID.String())
	claims, err := h.ValidateToken(r)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "walker", claims.Username)

	viewer, err := h.Viewer(r)
	require.NoError(t, err)
	require.NotNil(t, viewer)
	assert.Equal(t, u.ID, *viewer)
}

func TestSessionForUnknownUserRejected(t *testing.T) {
	db := testdb.Open(t)
	store := sessions.NewCookieStore([]byte("session-secret"))
	h := New(db, NewTokenManager("secret", time.Hour, time.Hour, nil), store, zap.NewNop())

	// подписанная cookie с произвольным id не дает доступа
	_, err := h.ValidateToken(sessionRequest(t, h, uuid.New().String()))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = h.ValidateToken(sessionRequest(t, h, "not-a-uuid"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionForInactiveUserRejected(t *testing.T) {
	db := testdb.Open(t)
	u := testdb.CreateUser(t, db, "gone")
	require.NoError(t, db.Model(u).Update("is_active", false).Error)
	store := sessions.NewCookieStore([]byte("session-secret"))
	h := New(db, NewTokenManager("secret", time.Hour, time.Hour, nil), store, zap.NewNop())

	r := sessionRequest(t, h, u.ID.String())
	_, err := h.ValidateToken(r)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = h.Viewer(r)
	assert.Error(t, err)
}

func TestSessionIgnoredWithoutDatabase(t *testing.T) {
	store := sessions.NewCookieStore([]byte("session-secret"))
	h := New(nil, NewTokenManager("secret", time.Hour, time.Hour, nil), store, zap.NewNop())

	_, err := h.ValidateToken(sessionRequest(t, h, uuid.New().String()))
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestSessionSignedWithOtherSecretIgnored(t *testing.T) {
	forger := New(nil, nil, sessions.NewCookieStore([]byte("something-very-secret")), zap.NewNop())
	forged := sessionRequest(t, forger, uuid.New().String())

	h := New(nil, NewTokenManager("secret", time.Hour, time.Hour, nil), sessions.NewCookieStore([]byte("session-secret")), zap.NewNop())
	_, err := h.ValidateToken(forged)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestViewer(t *testing.T) {
	h := New(nil, NewTokenManager("secret", time.Hour, time.Hour, nil), nil, zap.NewNop())

	viewer, err := h.Viewer(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, viewer)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	_, err = h.Viewer(r)
	assert.Error(t, err)
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, validatePassword("short"))
	assert.NoError(t, validatePassword("longenough"))
	assert.Equal(t, "password", apperr.FieldOf(validatePassword("1234567")))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"  Walker@Example.COM ", "walker@example.com", true},
		{"walker@example", "", false},
		{"not-an-email", "", false},
		{"Walker <walker@example.com>", "", false},
	}
	for _, tt := range tests {
		got, err := validateEmail(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
