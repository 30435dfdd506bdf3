package users

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)

// PrivacySettings - настройки приватности пользователя (jsonb)
type PrivacySettings struct {
	ProfileVisibility   string `json:"profile_visibility"` // public, private
	LocationSharing     bool   `json:"location_sharing"`
	MemoryDiscovery     bool   `json:"memory_discovery"`
	ShowActivityStatus  bool   `json:"show_activity_status"`
	AllowFriendRequests bool   `json:"allow_friend_requests"`
}

func DefaultPrivacySettings() PrivacySettings {
	return PrivacySettings{
		ProfileVisibility:   "public",
		LocationSharing:     true,
		MemoryDiscovery:     true,
		ShowActivityStatus:  true,
		AllowFriendRequests: true,
	}
}

type User struct {
	ID                     uuid.UUID                           `json:"id" gorm:"type:uuid;primaryKey"`
	Username               string                              `json:"username" gorm:"size:30;not null"`
	Email                  string                              `json:"email" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash           string                              `json:"-" gorm:"not null"`
	DisplayName            string                              `json:"display_name" gorm:"size:100"`
	Bio                    string                              `json:"bio" gorm:"type:text"`
	ProfilePhotoURL        string                              `json:"profile_photo_url" gorm:"type:text"`
	PrivacySettings        datatypes.JSONType[PrivacySettings] `json:"privacy_settings" gorm:"type:jsonb"`
	LocationSharingEnabled bool                                `json:"location_sharing_enabled" gorm:"default:true"`
	DefaultMemoryPrivacy   string                              `json:"default_memory_privacy" gorm:"size:20;default:'public'"`
	IsActive               bool                                `json:"is_active" gorm:"default:true;index"`
	IsVerified             bool                                `json:"is_verified" gorm:"default:false"`
	MemoriesCount          int64                               `json:"memories_count" gorm:"default:0"`
	DiscoveriesCount       int64                               `json:"discoveries_count" gorm:"default:0"`
	LikesGivenCount        int64                               `json:"likes_given_count" gorm:"default:0"`
	LikesReceivedCount     int64                               `json:"likes_received_count" gorm:"default:0"`
	CreatedAt              time.Time                           `json:"created_at"`
	UpdatedAt              time.Time                           `json:"updated_at"`
	LastActive             *time.Time                          `json:"last_active,omitempty"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = NormalizeEmail(u.Email)
	if u.PrivacySettings.Data().ProfileVisibility == "" {
		u.PrivacySettings = datatypes.NewJSONType(DefaultPrivacySettings())
	}
	return nil
}

// Privacy возвращает настройки с дефолтами, если колонка пустая
func (u *User) Privacy() PrivacySettings {
	p := u.PrivacySettings.Data()
	if p.ProfileVisibility == "" {
		return DefaultPrivacySettings()
	}
	return p
}

// PublicProfile - то, что видят другие пользователи
type PublicProfile struct {
	ID              uuid.UUID  `json:"id"`
	Username        string     `json:"username"`
	DisplayName     string     `json:"display_name,omitempty"`
	ProfilePhotoURL string     `json:"profile_photo_url,omitempty"`
	Bio             string     `json:"bio,omitempty"`
	Email           string     `json:"email,omitempty"`
	MemoriesCount   *int64     `json:"memories_count,omitempty"`
	LastActive      *time.Time `json:"last_active,omitempty"`
}

// PublicView отдает профиль с учетом настроек приватности
func (u *User) PublicView(viewer *uuid.UUID) PublicProfile {
	p := PublicProfile{
		ID:              u.ID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		ProfilePhotoURL: u.ProfilePhotoURL,
	}
	self := viewer != nil && *viewer == u.ID
	privacy := u.Privacy()
	if self || privacy.ProfileVisibility == "public" {
		p.Bio = u.Bio
		count := u.MemoriesCount
		p.MemoriesCount = &count
	}
	if self {
		p.Email = u.Email
	}
	if self || privacy.ShowActivityStatus {
		p.LastActive = u.LastActive
	}
	return p
}

func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
