package interaction

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyLike         NotificationType = "like"
	NotifyComment      NotificationType = "comment"
	NotifyShare        NotificationType = "share"
	NotifyNearbyMemory NotificationType = "nearby_memory"
)

type Notification struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	UserID    uuid.UUID        `json:"user_id" gorm:"type:uuid;index;not null"`
	ActorID   *uuid.UUID       `json:"actor_id,omitempty" gorm:"type:uuid"`
	MemoryID  *uuid.UUID       `json:"memory_id,omitempty" gorm:"type:uuid"`
	Type      NotificationType `json:"type" gorm:"size:20;not null"`
	Message   string           `json:"message" gorm:"type:text;not null"`
	IsRead    bool             `json:"is_read" gorm:"default:false"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime"`
}
