package authentication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"memory-lane-backend/models/users"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrNoCredential = errors.New("authorization required")
)

type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	TokenType string    `json:"token_type"`
	jwt.StandardClaims
}

// TokenPair - ответ на login/register
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Blocklist хранит jti отозванных токенов до их истечения
type Blocklist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisBlocklist - отзыв токенов в Redis с TTL до истечения токена
type RedisBlocklist struct {
	rdb *redis.Client
}

func NewRedisBlocklist(rdb *redis.Client) *RedisBlocklist {
	return &RedisBlocklist{rdb: rdb}
}

func revokedKey(jti string) string { return "revoked_jti:" + jti }

func (b *RedisBlocklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (b *RedisBlocklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryBlocklist - для одного процесса без Redis и для тестов
type MemoryBlocklist struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewMemoryBlocklist() *MemoryBlocklist {
	return &MemoryBlocklist{items: make(map[string]time.Time)}
}

func (b *MemoryBlocklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for k, exp := range b.items {
		if !exp.After(now) {
			delete(b.items, k)
		}
	}
	b.items[jti] = now.Add(ttl)
	return nil
}

func (b *MemoryBlocklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.items[jti]
	return ok && exp.After(time.Now()), nil
}

// TokenManager выпускает и проверяет access/refresh JWT (HS256)
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	blocklist  Blocklist
	now        func() time.Time
}

func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration, blocklist Blocklist) *TokenManager {
	if blocklist == nil {
		blocklist = NewMemoryBlocklist()
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		blocklist:  blocklist,
		now:        time.Now,
	}
}

func (m *TokenManager) sign(u *users.User, kind string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID:    u.ID,
		Email:     u.Email,
		Username:  u.Username,
		TokenType: kind,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   u.ID.String(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Issue - пара токенов для пользователя
func (m *TokenManager) Issue(u *users.User) (TokenPair, error) {
	access, err := m.sign(u, TokenAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(u, TokenRefresh, m.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.accessTTL.Seconds()),
	}, nil
}

// IssueAccess - только access token (refresh)
func (m *TokenManager) IssueAccess(u *users.User) (TokenPair, error) {
	access, err := m.sign(u, TokenAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	return TokenPair{AccessToken: access, TokenType: "Bearer", ExpiresIn: int64(m.accessTTL.Seconds())}, nil
}

// Parse проверяет подпись, срок, тип и отзыв токена
func (m *TokenManager) Parse(ctx context.Context, tokenString, kind string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != kind || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	revoked, err := m.blocklist.IsRevoked(ctx, claims.Id)
	if err != nil {
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke заносит jti в блок-лист до истечения токена
func (m *TokenManager) Revoke(ctx context.Context, c *Claims) error {
	if c == nil || c.Id == "" {
		return nil
	}
	ttl := time.Until(time.Unix(c.ExpiresAt, 0))
	return m.blocklist.Revoke(ctx, c.Id, ttl)
}
