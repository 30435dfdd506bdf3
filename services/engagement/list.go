package engagement

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/pagination"
)

const (
	defaultListPerPage = 20
	maxListPerPage     = 100
)

// Entry - взаимодействие вместе с публичным профилем автора
type Entry struct {
	interaction.Interaction
	User *users.PublicProfile `json:"user,omitempty"`
}

type ListResult struct {
	Items      []Entry         `json:"items"`
	Pagination pagination.Meta `json:"pagination"`
}

// Comments - активные комментарии, новые первыми. Доступ как к самому воспоминанию.
func (s *Service) Comments(ctx context.Context, viewer *uuid.UUID, memoryID uuid.UUID, page pagination.Params) (ListResult, error) {
	return s.listForMemory(ctx, viewer, memoryID, interaction.TypeComment, page)
}

// Likes - активные лайки, новые первыми
func (s *Service) Likes(ctx context.Context, viewer *uuid.UUID, memoryID uuid.UUID, page pagination.Params) (ListResult, error) {
	return s.listForMemory(ctx, viewer, memoryID, interaction.TypeLike, page)
}

func (s *Service) listForMemory(ctx context.Context, viewer *uuid.UUID, memoryID uuid.UUID, kind interaction.Type, page pagination.Params) (ListResult, error) {
	page, err := page.Normalize(defaultListPerPage, maxListPerPage)
	if err != nil {
		return ListResult{}, err
	}
	db := s.db.WithContext(ctx)
	if _, err := s.visibleMemory(db, viewer, memoryID); err != nil {
		return ListResult{}, err
	}

	scope := func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&interaction.Interaction{}).
			Where("memory_id = ? AND interaction_type = ? AND is_active", memoryID, kind)
	}
	return s.list(db, viewer, scope, page)
}

// UserInteractions - история взаимодействий пользователя. Только свои.
func (s *Service) UserInteractions(ctx context.Context, viewer, userID uuid.UUID, kind interaction.Type, page pagination.Params) (ListResult, error) {
	if viewer != userID {
		return ListResult{}, apperr.Forbidden("you can only view your own interactions")
	}
	if kind != "" && !kind.Valid() {
		return ListResult{}, apperr.Validation("type", "unknown interaction type")
	}
	page, err := page.Normalize(defaultListPerPage, maxListPerPage)
	if err != nil {
		return ListResult{}, err
	}

	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&interaction.Interaction{}).Where("user_id = ? AND is_active", userID)
		if kind != "" {
			tx = tx.Where("interaction_type = ?", kind)
		}
		return tx
	}
	return s.list(s.db.WithContext(ctx), &viewer, scope, page)
}

func (s *Service) list(db *gorm.DB, viewer *uuid.UUID, scope func(*gorm.DB) *gorm.DB, page pagination.Params) (ListResult, error) {
	var total int64
	if err := db.Scopes(scope).Count(&total).Error; err != nil {
		return ListResult{}, apperr.Transient(err)
	}

	var rows []interaction.Interaction
	err := db.Scopes(scope).
		Order("created_at DESC, id DESC").
		Limit(page.PerPage).
		Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return ListResult{}, apperr.Transient(err)
	}

	authors, err := s.authors(db, rows)
	if err != nil {
		return ListResult{}, apperr.Transient(err)
	}

	items := make([]Entry, len(rows))
	for i, row := range rows {
		items[i] = Entry{Interaction: row}
		if u, ok := authors[row.UserID]; ok {
			view := u.PublicView(viewer)
			items[i].User = &view
		}
	}
	return ListResult{Items: items, Pagination: pagination.NewMeta(page, total)}, nil
}

func (s *Service) authors(db *gorm.DB, rows []interaction.Interaction) (map[uuid.UUID]*users.User, error) {
	out := make(map[uuid.UUID]*users.User)
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	seen := make(map[uuid.UUID]bool)
	for _, r := range rows {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	var list []users.User
	if err := db.Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}
