package memorystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
)

// CleanupExpired деактивирует истекшие воспоминания и возвращает их количество.
// memories_count авторов уменьшается на число снятых воспоминаний.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	type expired struct {
		CreatorID uuid.UUID
		N         int64
	}
	var affected int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []expired
		err := tx.Raw(`
			WITH gone AS (
				UPDATE memories
				SET is_active = false, updated_at = ?
				WHERE is_active AND expiration_date IS NOT NULL AND expiration_date <= ?
				RETURNING creator_id
			)
			SELECT creator_id, COUNT(*) AS n FROM gone GROUP BY creator_id`, s.now(), s.now()).
			Scan(&rows).Error
		if err != nil {
			return fmt.Errorf("deactivate expired memories: %w", err)
		}
		for _, r := range rows {
			affected += r.N
			if err := tx.Model(&users.User{}).Where("id = ?", r.CreatorID).
				UpdateColumn("memories_count", gorm.Expr("GREATEST(memories_count - ?, 0)", r.N)).Error; err != nil {
				return fmt.Errorf("decrement memories_count: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Transient(err)
	}
	if affected > 0 {
		s.log.Info("expired memories cleaned up", zap.Int64("count", affected))
	}
	return affected, nil
}

type UserStats struct {
	UserID             uuid.UUID `json:"user_id"`
	MemoriesCount      int64     `json:"memories_count"`
	LikesReceivedCount int64     `json:"likes_received_count"`
	LikesGivenCount    int64     `json:"likes_given_count"`
}

// RefreshUserStats пересчитывает счетчики пользователя по строкам таблиц
func (s *Service) RefreshUserStats(ctx context.Context, userID uuid.UUID) (UserStats, error) {
	stats := UserStats{UserID: userID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u users.User
		if err := tx.First(&u, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user not found")
			}
			return err
		}

		err := tx.Raw(`
			SELECT
				(SELECT COUNT(*) FROM memories WHERE creator_id = @id AND is_active) AS memories_count,
				(SELECT COUNT(*) FROM interactions i JOIN memories m ON m.id = i.memory_id
					WHERE m.creator_id = @id AND i.interaction_type = 'like' AND i.is_active) AS likes_received_count,
				(SELECT COUNT(*) FROM interactions
					WHERE user_id = @id AND interaction_type = 'like' AND is_active) AS likes_given_count`,
			map[string]any{"id": userID}).Scan(&stats).Error
		if err != nil {
			return err
		}
		stats.UserID = userID

		return tx.Model(&users.User{}).Where("id = ?", userID).Updates(map[string]any{
			"memories_count":       stats.MemoriesCount,
			"likes_received_count": stats.LikesReceivedCount,
			"likes_given_count":    stats.LikesGivenCount,
		}).Error
	})
	if err != nil {
		return UserStats{}, wrapTx(err)
	}
	return stats, nil
}
