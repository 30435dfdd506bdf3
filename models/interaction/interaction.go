package interaction

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Type string

const (
	TypeLike    Type = "like"
	TypeComment Type = "comment"
	TypeShare   Type = "share"
	TypeReport  Type = "report"
	TypeView    Type = "view"
)

func (t Type) Valid() bool {
	switch t {
	case TypeLike, TypeComment, TypeShare, TypeReport, TypeView:
		return true
	}
	return false
}

// Причины жалоб
var ReportReasons = map[string]bool{
	"inappropriate_content": true,
	"spam":                  true,
	"harassment":            true,
	"copyright_violation":   true,
	"false_information":     true,
	"other":                 true,
}

const (
	MaxCommentLength    = 1000
	MaxReportDetails    = 500
	MaxShareMessage     = 500
	MaxSharePlatform    = 50
	ReportFlagThreshold = 3
)

// Interaction - лайк, комментарий, репост или жалоба пользователя на воспоминание
type Interaction struct {
	ID              uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID         `json:"user_id" gorm:"type:uuid;not null"`
	MemoryID        uuid.UUID         `json:"memory_id" gorm:"type:uuid;not null"`
	InteractionType Type              `json:"interaction_type" gorm:"size:10;not null"`
	Content         string            `json:"content,omitempty" gorm:"type:text"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	IsActive        bool              `json:"is_active" gorm:"not null;default:true"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (i *Interaction) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
