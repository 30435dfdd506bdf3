package interactions

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/models/interaction"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/pagination"
)

func notificationID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("id", "invalid notification ID")
	}
	return uint(id), nil
}

// GetNotifications - уведомления пользователя, новые первыми
func GetNotifications(w http.ResponseWriter, r *http.Request, db *gorm.DB, auth authentication.Authenticator) {
	claims, err := auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	params, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	page, err := params.Normalize(20, 100)
	if err != nil {
		respond.Error(w, err)
		return
	}
	unreadOnly := respond.QueryBool(r, "unread_only")

	query := func() *gorm.DB {
		tx := db.WithContext(r.Context()).Model(&interaction.Notification{}).Where("user_id = ?", claims.UserID)
		if unreadOnly {
			tx = tx.Where("is_read = ?", false)
		}
		return tx
	}

	var total, unread int64
	if err := query().Count(&total).Error; err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	}
	err = db.WithContext(r.Context()).Model(&interaction.Notification{}).
		Where("user_id = ? AND is_read = ?", claims.UserID, false).
		Count(&unread).Error
	if err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	}

	var notifications []interaction.Notification
	if err := query().Order("created_at DESC, id DESC").Offset(page.Offset()).Limit(page.PerPage).Find(&notifications).Error; err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"unread_count":  unread,
		"pagination":    pagination.NewMeta(page, total),
	})
}

// MarkNotificationAsRead - отметить уведомление как прочитанное
func MarkNotificationAsRead(w http.ResponseWriter, r *http.Request, db *gorm.DB, auth authentication.Authenticator) {
	claims, err := auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := notificationID(r)
	if err != nil {
		respond.Error(w, err)
		return
	}

	res := db.WithContext(r.Context()).Model(&interaction.Notification{}).
		Where("id = ? AND user_id = ?", id, claims.UserID).
		Update("is_read", true)
	if res.Error != nil {
		respond.Error(w, apperr.Transient(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		respond.Error(w, apperr.NotFound("notification not found"))
		return
	}
	respond.Message(w, http.StatusOK, "Notification marked as read")
}

// MarkAllNotificationsAsRead - прочитать все
func MarkAllNotificationsAsRead(w http.ResponseWriter, r *http.Request, db *gorm.DB, auth authentication.Authenticator) {
	claims, err := auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	res := db.WithContext(r.Context()).Model(&interaction.Notification{}).
		Where("user_id = ? AND is_read = ?", claims.UserID, false).
		Update("is_read", true)
	if res.Error != nil {
		respond.Error(w, apperr.Transient(res.Error))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"updated": res.RowsAffected})
}

// DeleteNotification - удаление уведомления
func DeleteNotification(w http.ResponseWriter, r *http.Request, db *gorm.DB, auth authentication.Authenticator) {
	claims, err := auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := notificationID(r)
	if err != nil {
		respond.Error(w, err)
		return
	}

	res := db.WithContext(r.Context()).Where("id = ? AND user_id = ?", id, claims.UserID).Delete(&interaction.Notification{})
	if res.Error != nil {
		respond.Error(w, apperr.Transient(res.Error))
		return
	}
	if res.RowsAffected == 0 {
		respond.Error(w, apperr.NotFound("notification not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
