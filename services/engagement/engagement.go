// Package engagement records likes, comments, shares and reports on memories and keeps
// the denormalized counters on memories and users in step with the interaction rows.
//
// Every mutation is one transaction. Counters only move through atomic
// "col = col +/- n" updates, and only when the interaction write actually changed a row,
// so retries and concurrent requests cannot double count.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
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

type LikeResult struct {
	MemoryID   uuid.UUID `json:"memory_id"`
	Liked      bool      `json:"liked"`
	Changed    bool      `json:"changed"`
	LikesCount int64     `json:"likes_count"`
}

type CommentResult struct {
	Comment       interaction.Interaction `json:"comment"`
	CommentsCount int64                   `json:"comments_count"`
}

type DeleteResult struct {
	CommentID     uuid.UUID `json:"comment_id"`
	Deleted       bool      `json:"deleted"`
	CommentsCount int64     `json:"comments_count"`
}

// visibleMemory загружает воспоминание, которое видит пользователь. Невидимое = не найдено.
func (s *Service) visibleMemory(tx *gorm.DB, viewer *uuid.UUID, memoryID uuid.UUID) (*memory.Memory, error) {
	var m memory.Memory
	if err := tx.First(&m, "id = ?", memoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("memory not found")
		}
		return nil, apperr.Transient(err)
	}
	if !memory.CanView(&m, viewer, s.now()) {
		return nil, apperr.NotFound("memory not found")
	}
	return &m, nil
}

func counterValue(tx *gorm.DB, memoryID uuid.UUID, column string) (int64, error) {
	var v int64
	err := tx.Model(&memory.Memory{}).Where("id = ?", memoryID).Select(column).Scan(&v).Error
	return v, err
}

func activeLikeConflict() clause.OnConflict {
	return clause.OnConflict{
		Columns:     []clause.Column{{Name: "user_id"}, {Name: "memory_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "interaction_type = 'like' AND is_active"}}},
		DoNothing:   true,
	}
}

func reportConflict() clause.OnConflict {
	return clause.OnConflict{
		Columns:     []clause.Column{{Name: "user_id"}, {Name: "memory_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "interaction_type = 'report'"}}},
		DoNothing:   true,
	}
}

// Like ставит лайк. Повторный лайк ничего не меняет.
func (s *Service) Like(ctx context.Context, userID, memoryID uuid.UUID) (LikeResult, error) {
	res := LikeResult{MemoryID: memoryID, Liked: true}
	var m *memory.Memory

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if m, err = s.visibleMemory(tx, &userID, memoryID); err != nil {
			return err
		}

		like := interaction.Interaction{
			UserID:          userID,
			MemoryID:        memoryID,
			InteractionType: interaction.TypeLike,
			IsActive:        true,
		}
		ins := tx.Clauses(activeLikeConflict()).Create(&like)
		if ins.Error != nil {
			return fmt.Errorf("insert like: %w", ins.Error)
		}

		if ins.RowsAffected == 1 {
			res.Changed = true
			if err := tx.Model(&memory.Memory{}).Where("id = ?", memoryID).
				UpdateColumn("likes_count", gorm.Expr("likes_count + 1")).Error; err != nil {
				return fmt.Errorf("increment likes_count: %w", err)
			}
			if err := bumpUserCounter(tx, userID, "likes_given_count", 1); err != nil {
				return err
			}
			if err := bumpUserCounter(tx, m.CreatorID, "likes_received_count", 1); err != nil {
				return err
			}
		}

		res.LikesCount, err = counterValue(tx, memoryID, "likes_count")
		return err
	})
	if err != nil {
		return LikeResult{}, wrapTx(err)
	}

	if res.Changed {
		s.afterInteraction(m, userID, interaction.TypeLike, map[string]any{"likes_count": res.LikesCount})
	}
	return res, nil
}

// Unlike снимает лайк. Если лайка нет - no-op без ошибки.
func (s *Service) Unlike(ctx context.Context, userID, memoryID uuid.UUID) (LikeResult, error) {
	res := LikeResult{MemoryID: memoryID, Liked: false}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.visibleMemory(tx, &userID, memoryID)
		if err != nil {
			return err
		}

		upd := tx.Model(&interaction.Interaction{}).
			Where("user_id = ? AND memory_id = ? AND interaction_type = ? AND is_active", userID, memoryID, interaction.TypeLike).
			Updates(map[string]any{"is_active": false, "updated_at": s.now()})
		if upd.Error != nil {
			return fmt.Errorf("deactivate like: %w", upd.Error)
		}

		if n := upd.RowsAffected; n > 0 {
			res.Changed = true
			if err := tx.Model(&memory.Memory{}).Where("id = ?", memoryID).
				UpdateColumn("likes_count", gorm.Expr("GREATEST(likes_count - ?, 0)", n)).Error; err != nil {
				return fmt.Errorf("decrement likes_count: %w", err)
			}
			if err := bumpUserCounter(tx, userID, "likes_given_count", -n); err != nil {
				return err
			}
			if err := bumpUserCounter(tx, m.CreatorID, "likes_received_count", -n); err != nil {
				return err
			}
		}

		res.LikesCount, err = counterValue(tx, memoryID, "likes_count")
		return err
	})
	if err != nil {
		return LikeResult{}, wrapTx(err)
	}
	return res, nil
}

func bumpUserCounter(tx *gorm.DB, userID uuid.UUID, column string, delta int64) error {
	expr := gorm.Expr(column+" + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("GREATEST("+column+" - ?, 0)", -delta)
	}
	if err := tx.Model(&users.User{}).Where("id = ?", userID).UpdateColumn(column, expr).Error; err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}

func validateComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Validation("content", "comment cannot be empty")
	}
	if utf8.RuneCountInString(content) > interaction.MaxCommentLength {
		return "", apperr.Validation("content", fmt.Sprintf("comment must be at most %d characters", interaction.MaxCommentLength))
	}
	return content, nil
}

// Comment добавляет комментарий и увеличивает comments_count
func (s *Service) Comment(ctx context.Context, userID, memoryID uuid.UUID, content string) (CommentResult, error) {
	content, err := validateComment(content)
	if err != nil {
		return CommentResult{}, err
	}

	var res CommentResult
	var m *memory.Memory
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if m, err = s.visibleMemory(tx, &userID, memoryID); err != nil {
			return err
		}
		res.Comment = interaction.Interaction{
			UserID:          userID,
			MemoryID:        memoryID,
			InteractionType: interaction.TypeComment,
			Content:         content,
			IsActive:        true,
		}
		if err := tx.Create(&res.Comment).Error; err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		if err := tx.Model(&memory.Memory{}).Where("id = ?", memoryID).
			UpdateColumn("comments_count", gorm.Expr("comments_count + 1")).Error; err != nil {
			return fmt.Errorf("increment comments_count: %w", err)
		}
		res.CommentsCount, err = counterValue(tx, memoryID, "comments_count")
		return err
	})
	if err != nil {
		return CommentResult{}, wrapTx(err)
	}

	s.afterInteraction(m, userID, interaction.TypeComment, map[string]any{
		"comments_count": res.CommentsCount,
		"comment_id":     res.Comment.ID,
	})
	return res, nil
}

func (s *Service) loadComment(tx *gorm.DB, commentID uuid.UUID, lock bool) (*interaction.Interaction, error) {
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c interaction.Interaction
	err := q.First(&c, "id = ? AND interaction_type = ?", commentID, interaction.TypeComment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("comment not found")
		}
		return nil, apperr.Transient(err)
	}
	return &c, nil
}

// UpdateComment меняет текст. Только автор комментария, счетчики не трогаются.
func (s *Service) UpdateComment(ctx context.Context, userID, commentID uuid.UUID, content string) (*interaction.Interaction, error) {
	content, err := validateComment(content)
	if err != nil {
		return nil, err
	}

	var c *interaction.Interaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = s.loadComment(tx, commentID, true); err != nil {
			return err
		}
		if !c.IsActive {
			return apperr.NotFound("comment not found")
		}
		if c.UserID != userID {
			return apperr.Forbidden("you can only edit your own comments")
		}
		c.Content = content
		c.UpdatedAt = s.now()
		return tx.Model(c).Updates(map[string]any{"content": c.Content, "updated_at": c.UpdatedAt}).Error
	})
	if err != nil {
		return nil, wrapTx(err)
	}
	return c, nil
}

// DeleteComment деактивирует комментарий и уменьшает comments_count ровно один раз.
// Повторное удаление - успешный no-op.
func (s *Service) DeleteComment(ctx context.Context, userID, commentID uuid.UUID) (DeleteResult, error) {
	res := DeleteResult{CommentID: commentID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.loadComment(tx, commentID, true)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return apperr.Forbidden("you can only delete your own comments")
		}

		if c.IsActive {
			upd := tx.Model(&interaction.Interaction{}).
				Where("id = ? AND is_active", commentID).
				Updates(map[string]any{"is_active": false, "updated_at": s.now()})
			if upd.Error != nil {
				return fmt.Errorf("deactivate comment: %w", upd.Error)
			}
			if upd.RowsAffected == 1 {
				res.Deleted = true
				if err := tx.Model(&memory.Memory{}).Where("id = ?", c.MemoryID).
					UpdateColumn("comments_count", gorm.Expr("GREATEST(comments_count - 1, 0)")).Error; err != nil {
					return fmt.Errorf("decrement comments_count: %w", err)
				}
			}
		}

		res.CommentsCount, err = counterValue(tx, c.MemoryID, "comments_count")
		return err
	})
	if err != nil {
		return DeleteResult{}, wrapTx(err)
	}
	return res, nil
}

// Share сохраняет репост. Счетчиков на воспоминании нет.
func (s *Service) Share(ctx context.Context, userID, memoryID uuid.UUID, platform, message string) (*interaction.Interaction, error) {
	platform = strings.TrimSpace(platform)
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(platform) > interaction.MaxSharePlatform {
		return nil, apperr.Validation("platform", fmt.Sprintf("must be at most %d characters", interaction.MaxSharePlatform))
	}
	if utf8.RuneCountInString(message) > interaction.MaxShareMessage {
		return nil, apperr.Validation("message", fmt.Sprintf("must be at most %d characters", interaction.MaxShareMessage))
	}

	share := interaction.Interaction{
		UserID:          userID,
		MemoryID:        memoryID,
		InteractionType: interaction.TypeShare,
		IsActive:        true,
		Metadata:        map[string]any{"platform": platform, "message": message},
	}
	var m *memory.Memory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if m, err = s.visibleMemory(tx, &userID, memoryID); err != nil {
			return err
		}
		return tx.Create(&share).Error
	})
	if err != nil {
		return nil, wrapTx(err)
	}

	s.afterInteraction(m, userID, interaction.TypeShare, map[string]any{"platform": platform})
	return &share, nil
}

// Report - жалоба. Одна на пользователя и воспоминание; с ReportFlagThreshold жалоб
// воспоминание помечается is_reported.
func (s *Service) Report(ctx context.Context, userID, memoryID uuid.UUID, reason, details string) (*interaction.Interaction, error) {
	reason = strings.TrimSpace(reason)
	details = strings.TrimSpace(details)
	if !interaction.ReportReasons[reason] {
		return nil, apperr.Validation("reason", "unsupported report reason")
	}
	if utf8.RuneCountInString(details) > interaction.MaxReportDetails {
		return nil, apperr.Validation("details", fmt.Sprintf("must be at most %d characters", interaction.MaxReportDetails))
	}

	report := interaction.Interaction{
		UserID:          userID,
		MemoryID:        memoryID,
		InteractionType: interaction.TypeReport,
		Content:         details,
		IsActive:        true,
		Metadata:        map[string]any{"reason": reason},
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.visibleMemory(tx, &userID, memoryID)
		if err != nil {
			return err
		}
		if m.CreatorID == userID {
			return apperr.Validation("memory_id", "you cannot report your own memory")
		}

		ins := tx.Clauses(reportConflict()).Create(&report)
		if ins.Error != nil {
			return fmt.Errorf("insert report: %w", ins.Error)
		}
		if ins.RowsAffected == 0 {
			return apperr.Conflict("you have already reported this memory")
		}

		var reports int64
		if err := tx.Model(&interaction.Interaction{}).
			Where("memory_id = ? AND interaction_type = ?", memoryID, interaction.TypeReport).
			Count(&reports).Error; err != nil {
			return err
		}
		if reports >= interaction.ReportFlagThreshold {
			return tx.Model(&memory.Memory{}).Where("id = ?", memoryID).UpdateColumn("is_reported", true).Error
		}
		return nil
	})
	if err != nil {
		return nil, wrapTx(err)
	}

	s.log.Info("memory reported",
		zap.String("memory_id", memoryID.String()),
		zap.String("user_id", userID.String()),
		zap.String("reason", reason))
	return &report, nil
}

// HasLiked - есть ли активный лайк пользователя
func (s *Service) HasLiked(ctx context.Context, userID, memoryID uuid.UUID) (bool, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.visibleMemory(db, &userID, memoryID); err != nil {
		return false, err
	}
	var exists bool
	err := db.Raw(`SELECT EXISTS (
		SELECT 1 FROM interactions
		WHERE user_id = ? AND memory_id = ? AND interaction_type = ? AND is_active
	)`, userID, memoryID, interaction.TypeLike).Scan(&exists).Error
	if err != nil {
		return false, apperr.Transient(err)
	}
	return exists, nil
}

// afterInteraction - realtime-событие и уведомление владельцу. Fire-and-forget.
func (s *Service) afterInteraction(m *memory.Memory, actorID uuid.UUID, kind interaction.Type, data map[string]any) {
	if m == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["interaction_type"] = kind

	ev := notify.Event{
		Type:      notify.EventMemoryInteraction,
		MemoryID:  m.ID,
		ActorID:   actorID,
		Location:  geo.Point{Latitude: m.Latitude, Longitude: m.Longitude},
		Data:      data,
		Timestamp: s.now(),
	}
	// по локации расходятся только публичные воспоминания, остальные видит лишь создатель
	if m.PrivacyLevel == memory.PrivacyPublic {
		s.events.PublishEvent(ev)
	} else {
		s.events.PublishUserEvent(notify.UserEvent{UserID: m.CreatorID, Type: ev.Type, Payload: ev})
	}

	if actorID == m.CreatorID {
		return
	}
	var ntype interaction.NotificationType
	var msg string
	switch kind {
	case interaction.TypeLike:
		ntype, msg = interaction.NotifyLike, fmt.Sprintf("Someone liked your memory %q", m.Title)
	case interaction.TypeComment:
		ntype, msg = interaction.NotifyComment, fmt.Sprintf("Someone commented on your memory %q", m.Title)
	case interaction.TypeShare:
		ntype, msg = interaction.NotifyShare, fmt.Sprintf("Someone shared your memory %q", m.Title)
	default:
		return
	}
	actor, memoryID := actorID, m.ID
	s.events.EnqueueNotification(notify.NotificationJob{
		RecipientID: m.CreatorID,
		ActorID:     &actor,
		MemoryID:    &memoryID,
		Type:        string(ntype),
		Message:     msg,
	})
}

// wrapTx оставляет ошибки apperr как есть, остальное считает временной ошибкой хранилища
func wrapTx(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Transient(err)
}
