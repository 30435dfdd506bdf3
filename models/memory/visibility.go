package memory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CanView решает, видит ли пользователь воспоминание. viewer == nil - анонимный запрос.
// Уровень friends пока ведет себя как private: графа друзей нет.
func CanView(m *Memory, viewer *uuid.UUID, now time.Time) bool {
	if m == nil || !m.IsActive || m.IsExpired(now) {
		return false
	}
	if viewer != nil && *viewer == m.CreatorID {
		return true
	}
	return m.PrivacyLevel == PrivacyPublic
}

// VisibleTo - тот же предикат, что и CanView, в виде gorm scope для запросов по таблице memories.
func VisibleTo(viewer *uuid.UUID, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("memories.is_active = ?", true).
			Where("(memories.expiration_date IS NULL OR memories.expiration_date > ?)", now)
		if viewer == nil {
			return db.Where("memories.privacy_level = ?", PrivacyPublic)
		}
		return db.Where("(memories.privacy_level = ? OR memories.creator_id = ?)", PrivacyPublic, *viewer)
	}
}

// PublicOnly - активные, неистекшие, публичные. Для агрегатов (heatmap, popular areas).
func PublicOnly(now time.Time) func(*gorm.DB) *gorm.DB {
	return VisibleTo(nil, now)
}
