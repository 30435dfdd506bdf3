package authentication

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
)

const (
	sessionName    = "memory-lane-session"
	sessionUserKey = "user_id"

	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// Authenticator - то, что нужно остальным контроллерам от авторизации
type Authenticator interface {
	ValidateToken(r *http.Request) (*Claims, error)
	Viewer(r *http.Request) (*uuid.UUID, error)
}

// Handler - регистрация, вход и профиль
type Handler struct {
	db     *gorm.DB
	tokens *TokenManager
	store  sessions.Store
	log    *zap.Logger
}

func New(db *gorm.DB, tokens *TokenManager, store sessions.Store, log *zap.Logger) *Handler {
	return &Handler{db: db, tokens: tokens, store: store, log: log}
}

// ValidateToken достает пользователя из Bearer-токена, а без заголовка - из cookie-сессии
func (h *Handler) ValidateToken(r *http.Request) (*Claims, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		return h.tokens.Parse(r.Context(), tokenString, TokenAccess)
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return h.tokens.Parse(r.Context(), token, TokenAccess)
	}

	return h.sessionClaims(r)
}

// sessionClaims - пользователь из cookie-сессии; сессия принимается только для существующего активного аккаунта
func (h *Handler) sessionClaims(r *http.Request) (*Claims, error) {
	if h.store == nil || h.db == nil {
		return nil, ErrNoCredential
	}
	session, err := h.store.Get(r, sessionName)
	if err != nil {
		return nil, ErrNoCredential
	}
	raw, ok := session.Values[sessionUserKey].(string)
	if !ok {
		return nil, ErrNoCredential
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var user users.User
	if err := h.db.WithContext(r.Context()).Select("id", "username").First(&user, "id = ? AND is_active", id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.log.Warn("session user lookup failed", zap.String("user_id", raw), zap.Error(err))
		}
		return nil, ErrInvalidToken
	}
	return &Claims{UserID: user.ID, Username: user.Username, TokenType: TokenAccess}, nil
}

// Viewer - id пользователя для эндпоинтов с необязательной авторизацией.
// Без учетных данных возвращает nil без ошибки; неверный токен - ошибка.
func (h *Handler) Viewer(r *http.Request) (*uuid.UUID, error) {
	claims, err := h.ValidateToken(r)
	if errors.Is(err, ErrNoCredential) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claims.UserID, nil
}

func validatePassword(p string) error {
	n := utf8.RuneCountInString(p)
	if n < MinPasswordLength {
		return apperr.Validation("password", "must be at least 8 characters")
	}
	if n > MaxPasswordLength {
		return apperr.Validation("password", "must be at most 128 characters")
	}
	return nil
}

func validateEmail(email string) (string, error) {
	email = users.NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", apperr.Validation("email", "invalid email address")
	}
	return email, nil
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Register: регистрация по email и паролю
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !users.ValidUsername(req.Username) {
		respond.Error(w, apperr.Validation("username", "3-30 characters: letters, numbers, underscores and hyphens"))
		return
	}
	email, err := validateEmail(req.Email)
	if err != nil {
		respond.Error(w, err)
		return
	}
	if err := validatePassword(req.Password); err != nil {
		respond.Error(w, err)
		return
	}
	if utf8.RuneCountInString(req.DisplayName) > 100 {
		respond.Error(w, apperr.Validation("display_name", "must be at most 100 characters"))
		return
	}

	taken, err := h.usernameTaken(r, req.Username)
	if err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	}
	if taken {
		respond.Error(w, apperr.Conflict("username already taken"))
		return
	}
	if taken, err = h.emailTaken(r, email); err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	} else if taken {
		respond.Error(w, apperr.Conflict("email already registered"))
		return
	}

	// Хэшируем пароль
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}
	user := users.User{
		Username:             req.Username,
		Email:                email,
		PasswordHash:         string(hashedPassword),
		DisplayName:          displayName,
		IsActive:             true,
		DefaultMemoryPrivacy: "public",
	}
	if err := h.db.WithContext(r.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respond.Error(w, apperr.Conflict("username or email already registered"))
			return
		}
		h.log.Error("create user failed", zap.Error(err))
		respond.Error(w, apperr.Transient(err))
		return
	}

	tokens, err := h.tokens.Issue(&user)
	if err != nil {
		http.Error(w, "Error generating token", http.StatusInternalServerError)
		return
	}

	h.log.Info("user registered", zap.String("user_id", user.ID.String()))
	respond.JSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user,
		"tokens":  tokens,
	})
}

type loginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login: вход по email или username
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	login := strings.TrimSpace(req.Login)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" {
		login = strings.TrimSpace(req.Username)
	}
	if login == "" || req.Password == "" {
		respond.Error(w, apperr.Validation("login", "login and password are required"))
		return
	}

	var user users.User
	err := h.db.WithContext(r.Context()).
		Where("email = ? OR lower(username) = lower(?)", users.NormalizeEmail(login), login).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		respond.Error(w, apperr.Transient(err))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if !user.IsActive {
		respond.Error(w, apperr.Forbidden("account is deactivated"))
		return
	}

	tokens, err := h.tokens.Issue(&user)
	if err != nil {
		http.Error(w, "Error generating token", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	user.LastActive = &now
	h.db.WithContext(r.Context()).Model(&users.User{}).Where("id = ?", user.ID).UpdateColumn("last_active", now)
	h.saveSession(w, r, user.ID.String())

	respond.JSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    user,
		"tokens":  tokens,
	})
}

// Refresh: новый access token по refresh token
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	claims, err := h.tokens.Parse(r.Context(), req.RefreshToken, TokenRefresh)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}

	var user users.User
	if err := h.db.WithContext(r.Context()).First(&user, "id = ? AND is_active", claims.UserID).Error; err != nil {
		http.Error(w, "Unauthorized: user not found", http.StatusUnauthorized)
		return
	}
	tokens, err := h.tokens.IssueAccess(&user)
	if err != nil {
		http.Error(w, "Error generating token", http.StatusInternalServerError)
		return
	}
	respond.JSON(w, http.StatusOK, tokens)
}

// Logout: отзыв access token (и refresh, если передан) и очистка сессии
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, err := h.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	if err := h.tokens.Revoke(r.Context(), claims); err != nil {
		h.log.Warn("revoke access token failed", zap.Error(err))
		respond.Error(w, apperr.Transient(err))
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if r.ContentLength > 0 && respond.DecodeJSON(r, &req) == nil && req.RefreshToken != "" {
		if refresh, err := h.tokens.Parse(r.Context(), req.RefreshToken, TokenRefresh); err == nil && refresh.UserID == claims.UserID {
			_ = h.tokens.Revoke(r.Context(), refresh)
		}
	}

	h.clearSession(w, r)
	respond.Message(w, http.StatusOK, "Logged out successfully")
}

// VerifyToken: проверка токена и текущий пользователь
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	claims, err := h.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	var user users.User
	if err := h.db.WithContext(r.Context()).First(&user, "id = ? AND is_active", claims.UserID).Error; err != nil {
		http.Error(w, "Unauthorized: user not found", http.StatusUnauthorized)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"valid": true, "user": user})
}

// CheckUsername: свободно ли имя
func (h *Handler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("username"))
	if !users.ValidUsername(name) {
		respond.Error(w, apperr.Validation("username", "3-30 characters: letters, numbers, underscores and hyphens"))
		return
	}
	taken, err := h.usernameTaken(r, name)
	if err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"username": name, "available": !taken})
}

// CheckEmail: свободен ли email
func (h *Handler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email, err := validateEmail(r.URL.Query().Get("email"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	taken, err := h.emailTaken(r, email)
	if err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"email": email, "available": !taken})
}

func (h *Handler) usernameTaken(r *http.Request, name string) (bool, error) {
	var n int64
	err := h.db.WithContext(r.Context()).Model(&users.User{}).Where("lower(username) = lower(?)", name).Count(&n).Error
	return n > 0, err
}

func (h *Handler) emailTaken(r *http.Request, email string) (bool, error) {
	var n int64
	err := h.db.WithContext(r.Context()).Model(&users.User{}).Where("email = ?", email).Count(&n).Error
	return n > 0, err
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request, userID string) {
	if h.store == nil {
		return
	}
	session, _ := h.store.Get(r, sessionName)
	session.Values[sessionUserKey] = userID
	if err := session.Save(r, w); err != nil {
		h.log.Warn("save session failed", zap.Error(err))
	}
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		return
	}
	session, _ := h.store.Get(r, sessionName)
	delete(session.Values, sessionUserKey)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		h.log.Warn("clear session failed", zap.Error(err))
	}
}
