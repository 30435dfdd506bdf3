package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type ContentType string

const (
	ContentPhoto ContentType = "photo"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
	ContentText  ContentType = "text"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentPhoto, ContentAudio, ContentVideo, ContentText:
		return true
	}
	return false
}

type PrivacyLevel string

const (
	PrivacyPublic  PrivacyLevel = "public"
	PrivacyFriends PrivacyLevel = "friends"
	PrivacyPrivate PrivacyLevel = "private"
)

func (p PrivacyLevel) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyFriends, PrivacyPrivate:
		return true
	}
	return false
}

// Memory - пост, привязанный к точке на карте.
// Колонка location (geography) генерируется в БД из longitude/latitude, см. config.Migrate.
type Memory struct {
	ID               uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatorID        uuid.UUID      `json:"creator_id" gorm:"type:uuid;not null"`
	Latitude         float64        `json:"latitude" gorm:"not null"`
	Longitude        float64        `json:"longitude" gorm:"not null"`
	LocationName     string         `json:"location_name,omitempty" gorm:"size:200"`
	ContentType      ContentType    `json:"content_type" gorm:"size:10;not null"`
	ContentURL       *string        `json:"content_url,omitempty" gorm:"type:text"`
	ContentText      string         `json:"content_text,omitempty" gorm:"type:text"`
	Title            string         `json:"title" gorm:"size:200;not null"`
	Description      string         `json:"description,omitempty" gorm:"type:text"`
	PrivacyLevel     PrivacyLevel   `json:"privacy_level" gorm:"size:10;not null;default:'public'"`
	CategoryTags     pq.StringArray `json:"category_tags" gorm:"type:text[];not null;default:'{}'"`
	Mood             string         `json:"mood,omitempty" gorm:"size:50"`
	IsActive         bool           `json:"is_active" gorm:"not null;default:true"`
	IsReported       bool           `json:"is_reported" gorm:"not null;default:false"`
	IsFeatured       bool           `json:"is_featured" gorm:"not null;default:false"`
	ExpirationDate   *time.Time     `json:"expiration_date,omitempty"`
	LikesCount       int64          `json:"likes_count" gorm:"not null;default:0"`
	CommentsCount    int64          `json:"comments_count" gorm:"not null;default:0"`
	ViewsCount       int64          `json:"views_count" gorm:"not null;default:0"`
	DiscoveriesCount int64          `json:"discoveries_count" gorm:"not null;default:0"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (m *Memory) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (m *Memory) IsExpired(now time.Time) bool {
	return m.ExpirationDate != nil && !m.ExpirationDate.After(now)
}

// Engagement - likes + comments, используется для сортировки popular
func (m *Memory) Engagement() int64 {
	return m.LikesCount + m.CommentsCount
}
