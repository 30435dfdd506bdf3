// Package memorystore owns the memory lifecycle: create, read, edit, soft delete,
// feeds and search, plus the maintenance jobs that expire memories and repair user counters.
package memorystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/geo"
	"memory-lane-backend/services/notify"
)

type Service struct {
	db     *gorm.DB
	events notify.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func New(db *gorm.DB, events notify.Publisher, log *zap.Logger) *Service {
	if events == nil {
		events = notify.Nop{}
	}
	return &Service{db: db, events: events, log: log, now: func() time.Time { return time.Now().UTC() }}
}

type CreateInput struct {
	Latitude        float64             `json:"latitude"`
	Longitude       float64             `json:"longitude"`
	LocationName    string              `json:"location_name"`
	ContentType     memory.ContentType  `json:"content_type"`
	ContentURL      *string             `json:"content_url"`
	ContentText     string              `json:"content_text"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	PrivacyLevel    memory.PrivacyLevel `json:"privacy_level"`
	CategoryTags    []string            `json:"category_tags"`
	Mood            string              `json:"mood"`
	ExpirationHours int                 `json:"expiration_hours"`
}

// UpdateInput - nil означает "не менять"
type UpdateInput struct {
	Title           *string              `json:"title"`
	Description     *string              `json:"description"`
	CategoryTags    *[]string            `json:"category_tags"`
	PrivacyLevel    *memory.PrivacyLevel `json:"privacy_level"`
	Mood            *string              `json:"mood"`
	LocationName    *string              `json:"location_name"`
	ExpirationHours *int                 `json:"expiration_hours"`
}

// Detail - воспоминание с автором для карточки
type Detail struct {
	memory.Memory
	Creator  *users.PublicProfile `json:"creator,omitempty"`
	HasLiked bool                 `json:"has_liked"`
}

func (s *Service) buildMemory(creator *users.User, in CreateInput) (*memory.Memory, error) {
	if err := geo.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	desc, err := validateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	url, text, err := validateContent(in.ContentType, in.ContentURL, in.ContentText)
	if err != nil {
		return nil, err
	}
	tags, err := NormalizeTags(in.CategoryTags)
	if err != nil {
		return nil, err
	}
	privacy := in.PrivacyLevel
	if privacy == "" {
		privacy = memory.PrivacyLevel(creator.DefaultMemoryPrivacy)
		if !privacy.Valid() {
			privacy = memory.PrivacyPublic
		}
	}
	if !privacy.Valid() {
		return nil, apperr.Validation("privacy_level", "must be one of public, friends, private")
	}
	expires, err := expirationFrom(in.ExpirationHours, s.now())
	if err != nil {
		return nil, err
	}

	return &memory.Memory{
		CreatorID:      creator.ID,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		LocationName:   in.LocationName,
		ContentType:    in.ContentType,
		ContentURL:     url,
		ContentText:    text,
		Title:          title,
		Description:    desc,
		PrivacyLevel:   privacy,
		CategoryTags:   pq.StringArray(tags),
		Mood:           in.Mood,
		IsActive:       true,
		ExpirationDate: expires,
	}, nil
}

// Create сохраняет воспоминание и увеличивает memories_count автора в той же транзакции
func (s *Service) Create(ctx context.Context, creatorID uuid.UUID, in CreateInput) (*memory.Memory, error) {
	var m *memory.Memory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var creator users.User
		if err := tx.First(&creator, "id = ? AND is_active", creatorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user not found")
			}
			return err
		}

		var err error
		if m, err = s.buildMemory(&creator, in); err != nil {
			return err
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
		return tx.Model(&users.User{}).Where("id = ?", creatorID).
			UpdateColumn("memories_count", gorm.Expr("memories_count + 1")).Error
	})
	if err != nil {
		return nil, wrapTx(err)
	}

	s.log.Info("memory created",
		zap.String("memory_id", m.ID.String()),
		zap.String("creator_id", creatorID.String()),
		zap.String("privacy", string(m.PrivacyLevel)))

	if m.PrivacyLevel == memory.PrivacyPublic {
		loc := geo.Point{Latitude: m.Latitude, Longitude: m.Longitude}
		s.events.PublishEvent(notify.Event{
			Type:     notify.EventNewMemoryNearby,
			MemoryID: m.ID,
			ActorID:  creatorID,
			Location: loc,
			Data: map[string]any{
				"title":        m.Title,
				"content_type": m.ContentType,
			},
			Timestamp: s.now(),
		})
		s.events.EnqueueProximity(notify.ProximityJob{
			MemoryID:  m.ID,
			CreatorID: creatorID,
			Title:     m.Title,
			Location:  loc,
		})
	}
	return m, nil
}

// Get отдает воспоминание и считает просмотр, если смотрит не автор
func (s *Service) Get(ctx context.Context, viewer *uuid.UUID, id uuid.UUID) (*Detail, error) {
	db := s.db.WithContext(ctx)
	var m memory.Memory
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("memory not found")
		}
		return nil, apperr.Transient(err)
	}
	now := s.now()
	if !m.IsActive {
		return nil, apperr.NotFound("memory not found")
	}
	if m.IsExpired(now) {
		return nil, apperr.Gone("memory has expired")
	}
	if !memory.CanView(&m, viewer, now) {
		return nil, apperr.Forbidden("access denied")
	}

	isCreator := viewer != nil && *viewer == m.CreatorID
	if !isCreator {
		if err := s.recordView(db, viewer, &m); err != nil {
			s.log.Warn("view not recorded", zap.String("memory_id", m.ID.String()), zap.Error(err))
		}
	}

	d := &Detail{Memory: m}
	var creator users.User
	if err := db.First(&creator, "id = ?", m.CreatorID).Error; err == nil {
		view := creator.PublicView(viewer)
		d.Creator = &view
	}
	if viewer != nil {
		liked, err := hasLiked(db, *viewer, m.ID)
		if err != nil {
			s.log.Warn("has_liked lookup failed", zap.String("memory_id", m.ID.String()), zap.Error(err))
		}
		d.HasLiked = liked
	}
	return d, nil
}

func hasLiked(db *gorm.DB, userID, memoryID uuid.UUID) (bool, error) {
	var liked int64
	err := db.Model(&interaction.Interaction{}).
		Where("user_id = ? AND memory_id = ? AND interaction_type = ? AND is_active", userID, memoryID, interaction.TypeLike).
		Count(&liked).Error
	return liked > 0, err
}

// recordView: views_count растет на каждый просмотр, interaction view пишется один раз на пользователя
func (s *Service) recordView(db *gorm.DB, viewer *uuid.UUID, m *memory.Memory) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(m).
			Clauses(clause.Returning{Columns: []clause.Column{{Name: "views_count"}}}).
			UpdateColumn("views_count", gorm.Expr("views_count + 1")).Error; err != nil {
			return err
		}
		if viewer == nil {
			return nil
		}
		var seen int64
		if err := tx.Model(&interaction.Interaction{}).
			Where("user_id = ? AND memory_id = ? AND interaction_type = ?", *viewer, m.ID, interaction.TypeView).
			Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return nil
		}
		return tx.Create(&interaction.Interaction{
			UserID:          *viewer,
			MemoryID:        m.ID,
			InteractionType: interaction.TypeView,
			IsActive:        true,
		}).Error
	})
}

// loadOwned - активное воспоминание под блокировкой; чужое = Forbidden
func loadOwned(tx *gorm.DB, userID, id uuid.UUID) (*memory.Memory, error) {
	var m memory.Memory
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("memory not found")
		}
		return nil, err
	}
	if !m.IsActive {
		return nil, apperr.NotFound("memory not found")
	}
	if m.CreatorID != userID {
		return nil, apperr.Forbidden("only the creator can modify this memory")
	}
	return &m, nil
}

// Update меняет разрешенные поля. Только автор.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in UpdateInput) (*memory.Memory, error) {
	var m *memory.Memory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if m, err = loadOwned(tx, userID, id); err != nil {
			return err
		}

		changes := map[string]any{}
		if in.Title != nil {
			title, err := validateTitle(*in.Title)
			if err != nil {
				return err
			}
			m.Title, changes["title"] = title, title
		}
		if in.Description != nil {
			desc, err := validateDescription(*in.Description)
			if err != nil {
				return err
			}
			m.Description, changes["description"] = desc, desc
		}
		if in.CategoryTags != nil {
			tags, err := NormalizeTags(*in.CategoryTags)
			if err != nil {
				return err
			}
			m.CategoryTags = pq.StringArray(tags)
			changes["category_tags"] = m.CategoryTags
		}
		if in.PrivacyLevel != nil {
			if !in.PrivacyLevel.Valid() {
				return apperr.Validation("privacy_level", "must be one of public, friends, private")
			}
			m.PrivacyLevel, changes["privacy_level"] = *in.PrivacyLevel, *in.PrivacyLevel
		}
		if in.Mood != nil {
			m.Mood, changes["mood"] = *in.Mood, *in.Mood
		}
		if in.LocationName != nil {
			m.LocationName, changes["location_name"] = *in.LocationName, *in.LocationName
		}
		if in.ExpirationHours != nil {
			expires, err := expirationFrom(*in.ExpirationHours, s.now())
			if err != nil {
				return err
			}
			m.ExpirationDate, changes["expiration_date"] = expires, expires
		}
		if len(changes) == 0 {
			return nil
		}
		m.UpdatedAt = s.now()
		changes["updated_at"] = m.UpdatedAt
		return tx.Model(&memory.Memory{}).Where("id = ?", id).Updates(changes).Error
	})
	if err != nil {
		return nil, wrapTx(err)
	}
	return m, nil
}

// AddTags дописывает теги к существующим с той же нормализацией и лимитом
func (s *Service) AddTags(ctx context.Context, userID, id uuid.UUID, tags []string) (*memory.Memory, error) {
	var m *memory.Memory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if m, err = loadOwned(tx, userID, id); err != nil {
			return err
		}
		merged, err := NormalizeTags(append(append([]string{}, m.CategoryTags...), tags...))
		if err != nil {
			return err
		}
		m.CategoryTags = pq.StringArray(merged)
		m.UpdatedAt = s.now()
		return tx.Model(&memory.Memory{}).Where("id = ?", id).
			Updates(map[string]any{"category_tags": m.CategoryTags, "updated_at": m.UpdatedAt}).Error
	})
	if err != nil {
		return nil, wrapTx(err)
	}
	return m, nil
}

// Delete - мягкое удаление автором, memories_count уменьшается
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOwned(tx, userID, id); err != nil {
			return err
		}
		if err := tx.Model(&memory.Memory{}).Where("id = ?", id).
			Updates(map[string]any{"is_active": false, "updated_at": s.now()}).Error; err != nil {
			return fmt.Errorf("deactivate memory: %w", err)
		}
		return tx.Model(&users.User{}).Where("id = ?", userID).
			UpdateColumn("memories_count", gorm.Expr("GREATEST(memories_count - 1, 0)")).Error
	})
	if err != nil {
		return wrapTx(err)
	}
	s.log.Info("memory deleted", zap.String("memory_id", id.String()), zap.String("user_id", userID.String()))
	return nil
}

func wrapTx(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Transient(err)
}
