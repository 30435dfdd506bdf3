package authentication

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
)

// ChangePassword: смена пароля пользователя
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	// Шаг 1: Получение текущего пользователя через токен
	claims, err := h.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}

	var user users.User
	if err := h.db.WithContext(r.Context()).First(&user, "id = ? AND is_active", claims.UserID).Error; err != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	// Шаг 2: Получение старого и нового пароля из запроса
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	// Шаг 3: Проверка текущего пароля
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		respond.Error(w, apperr.Validation("current_password", "current password is incorrect"))
		return
	}
	if err := validatePassword(req.NewPassword); err != nil {
		respond.Error(w, apperr.Validation("new_password", apperr.MessageOf(err)))
		return
	}

	// Шаг 4: Хэширование нового пароля
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing new password", http.StatusInternalServerError)
		return
	}

	// Шаг 5: Обновление пароля в базе данных
	err = h.db.WithContext(r.Context()).Model(&users.User{}).
		Where("id = ?", user.ID).
		Update("password_hash", string(hashed)).Error
	if err != nil {
		h.log.Error("update password failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respond.Error(w, apperr.Transient(err))
		return
	}

	respond.Message(w, http.StatusOK, "Password changed successfully")
}
