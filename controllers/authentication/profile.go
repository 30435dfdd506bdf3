package authentication

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
)

// GetProfile - профиль текущего пользователя
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, err := h.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	var user users.User
	if err := h.db.WithContext(r.Context()).First(&user, "id = ? AND is_active", claims.UserID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"user": user})
}

type profileUpdate struct {
	DisplayName            *string `json:"display_name"`
	Bio                    *string `json:"bio"`
	ProfilePhotoURL        *string `json:"profile_photo_url"`
	LocationSharingEnabled *bool   `json:"location_sharing_enabled"`
	DefaultMemoryPrivacy   *string `json:"default_memory_privacy"`
}

func (p profileUpdate) changes() (map[string]any, error) {
	changes := map[string]any{}
	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		if utf8.RuneCountInString(name) > 100 {
			return nil, apperr.Validation("display_name", "must be at most 100 characters")
		}
		changes["display_name"] = name
	}
	if p.Bio != nil {
		if utf8.RuneCountInString(*p.Bio) > 500 {
			return nil, apperr.Validation("bio", "must be at most 500 characters")
		}
		changes["bio"] = strings.TrimSpace(*p.Bio)
	}
	if p.ProfilePhotoURL != nil {
		changes["profile_photo_url"] = strings.TrimSpace(*p.ProfilePhotoURL)
	}
	if p.LocationSharingEnabled != nil {
		changes["location_sharing_enabled"] = *p.LocationSharingEnabled
	}
	if p.DefaultMemoryPrivacy != nil {
		level := memory.PrivacyLevel(*p.DefaultMemoryPrivacy)
		if !level.Valid() {
			return nil, apperr.Validation("default_memory_privacy", "must be public, friends or private")
		}
		changes["default_memory_privacy"] = string(level)
	}
	return changes, nil
}

// UpdateProfile - частичное обновление профиля
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, err := h.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}

	var req profileUpdate
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	changes, err := req.changes()
	if err != nil {
		respond.Error(w, err)
		return
	}

	var user users.User
	err = h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ? AND is_active", claims.UserID).Error; err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		return tx.Model(&user).Updates(changes).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond.Error(w, apperr.NotFound("user not found"))
			return
		}
		respond.Error(w, apperr.Transient(err))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"message": "Profile updated", "user": user})
}

type privacyUpdate struct {
	ProfileVisibility   *string `json:"profile_visibility"`
	LocationSharing     *bool   `json:"location_sharing"`
	MemoryDiscovery     *bool   `json:"memory_discovery"`
	ShowActivityStatus  *bool   `json:"show_activity_status"`
	AllowFriendRequests *bool   `json:"allow_friend_requests"`
}

func (p privacyUpdate) apply(s *users.PrivacySettings) error {
	if p.ProfileVisibility != nil {
		if *p.ProfileVisibility != "public" && *p.ProfileVisibility != "private" {
			return apperr.Validation("profile_visibility", "must be public or private")
		}
		s.ProfileVisibility = *p.ProfileVisibility
	}
	if p.LocationSharing != nil {
		s.LocationSharing = *p.LocationSharing
	}
	if p.MemoryDiscovery != nil {
		s.MemoryDiscovery = *p.MemoryDiscovery
	}
	if p.ShowActivityStatus != nil {
		s.ShowActivityStatus = *p.ShowActivityStatus
	}
	if p.AllowFriendRequests != nil {
		s.AllowFriendRequests = *p.AllowFriendRequests
	}
	return nil
}

// UpdatePrivacy - слияние настроек приватности
func (h *Handler) UpdatePrivacy(w http.ResponseWriter, r *http.Request) {
	claims, err := h.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	var req privacyUpdate
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	var settings users.PrivacySettings
	err = h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		var user users.User
		if err := tx.First(&user, "id = ? AND is_active", claims.UserID).Error; err != nil {
			return err
		}
		settings = user.Privacy()
		if err := req.apply(&settings); err != nil {
			return err
		}
		return tx.Model(&user).Updates(map[string]any{
			"privacy_settings":         datatypes.NewJSONType(settings),
			"location_sharing_enabled": settings.LocationSharing,
		}).Error
	})
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		respond.Error(w, apperr.NotFound("user not found"))
		return
	case apperr.Is(err, apperr.KindValidation):
		respond.Error(w, err)
		return
	default:
		respond.Error(w, apperr.Transient(err))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"privacy_settings": settings})
}

// GetUser - публичный профиль с учетом приватности
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.Viewer(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := respond.PathUUID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	var user users.User
	if err := h.db.WithContext(r.Context()).First(&user, "id = ? AND is_active", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond.Error(w, apperr.NotFound("user not found"))
			return
		}
		respond.Error(w, apperr.Transient(err))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"user": user.PublicView(viewer)})
}
