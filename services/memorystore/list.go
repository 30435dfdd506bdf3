package memorystore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/discovery"
	"memory-lane-backend/services/pagination"
)

const (
	defaultPerPage = 20
	maxPerPage     = 50
)

type ListResult struct {
	Memories   []Detail        `json:"memories"`
	Query      string          `json:"query,omitempty"`
	Pagination pagination.Meta `json:"pagination"`
}

type FeedQuery struct {
	Viewer      *uuid.UUID
	Sort        string // recent, popular, featured
	TimeFilter  string
	ContentType memory.ContentType
	Page        pagination.Params
}

type SearchQuery struct {
	Viewer      *uuid.UUID
	Q           string
	Tags        []string
	ContentType memory.ContentType
	Page        pagination.Params
}

// ByUser - воспоминания автора. Сам автор видит и приватные, и истекшие.
func (s *Service) ByUser(ctx context.Context, viewer *uuid.UUID, userID uuid.UUID, page pagination.Params) (ListResult, error) {
	page, err := page.Normalize(defaultPerPage, maxPerPage)
	if err != nil {
		return ListResult{}, err
	}
	db := s.db.WithContext(ctx)

	var owner users.User
	if err := db.First(&owner, "id = ? AND is_active", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ListResult{}, apperr.NotFound("user not found")
		}
		return ListResult{}, apperr.Transient(err)
	}

	self := viewer != nil && *viewer == userID
	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&memory.Memory{}).Where("memories.creator_id = ?", userID)
		if self {
			return tx.Where("memories.is_active")
		}
		return tx.Scopes(memory.VisibleTo(viewer, s.now()))
	}
	return s.list(db, viewer, scope, "memories.created_at DESC, memories.id DESC", page)
}

// Feed - лента публичных воспоминаний
func (s *Service) Feed(ctx context.Context, q FeedQuery) (ListResult, error) {
	page, err := q.Page.Normalize(defaultPerPage, maxPerPage)
	if err != nil {
		return ListResult{}, err
	}
	if q.ContentType != "" && !q.ContentType.Valid() {
		return ListResult{}, apperr.Validation("content_type", "must be one of photo, audio, video, text")
	}
	now := s.now()
	since, err := discovery.TimeWindowStart(q.TimeFilter, now)
	if err != nil {
		return ListResult{}, err
	}

	var order string
	featuredOnly := false
	switch q.Sort {
	case "", "recent":
		order = "memories.created_at DESC, memories.id DESC"
	case "popular":
		order = "(memories.likes_count + memories.comments_count) DESC, memories.created_at DESC, memories.id DESC"
	case "featured":
		featuredOnly = true
		order = "memories.created_at DESC, memories.id DESC"
	default:
		return ListResult{}, apperr.Validation("sort", "must be one of recent, popular, featured")
	}

	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&memory.Memory{}).Scopes(memory.PublicOnly(now))
		if q.ContentType != "" {
			tx = tx.Where("memories.content_type = ?", q.ContentType)
		}
		if since != nil {
			tx = tx.Where("memories.created_at >= ?", *since)
		}
		if featuredOnly {
			tx = tx.Where("memories.is_featured")
		}
		return tx
	}
	return s.list(s.db.WithContext(ctx), q.Viewer, scope, order, page)
}

// Search - подстрока в title/description/location_name плюс фильтр по тегам
func (s *Service) Search(ctx context.Context, q SearchQuery) (ListResult, error) {
	text, err := validateQuery(q.Q)
	if err != nil {
		return ListResult{}, err
	}
	var tags []string
	if len(q.Tags) > 0 {
		if tags, err = NormalizeTags(q.Tags); err != nil {
			return ListResult{}, err
		}
	}
	if q.ContentType != "" && !q.ContentType.Valid() {
		return ListResult{}, apperr.Validation("content_type", "must be one of photo, audio, video, text")
	}
	page, err := q.Page.Normalize(defaultPerPage, maxPerPage)
	if err != nil {
		return ListResult{}, err
	}

	pattern := "%" + escapeLike(text) + "%"
	scope := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Model(&memory.Memory{}).
			Scopes(memory.VisibleTo(q.Viewer, s.now())).
			Where("(memories.title ILIKE ? OR memories.description ILIKE ? OR memories.location_name ILIKE ? OR ? = ANY(memories.category_tags))",
				pattern, pattern, pattern, text)
		if len(tags) > 0 {
			tx = tx.Where("memories.category_tags && ?", pq.StringArray(tags))
		}
		if q.ContentType != "" {
			tx = tx.Where("memories.content_type = ?", q.ContentType)
		}
		return tx
	}
	res, err := s.list(s.db.WithContext(ctx), q.Viewer, scope, "memories.created_at DESC, memories.id DESC", page)
	res.Query = text
	return res, err
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

func (s *Service) list(db *gorm.DB, viewer *uuid.UUID, scope func(*gorm.DB) *gorm.DB, order string, page pagination.Params) (ListResult, error) {
	var total int64
	if err := db.Scopes(scope).Count(&total).Error; err != nil {
		return ListResult{}, apperr.Transient(err)
	}

	var rows []memory.Memory
	err := db.Scopes(scope).
		Order(order).
		Limit(page.PerPage).
		Offset(page.Offset()).
		Find(&rows).Error
	if err != nil {
		return ListResult{}, apperr.Transient(err)
	}

	items, err := s.decorate(db, viewer, rows)
	if err != nil {
		return ListResult{}, apperr.Transient(err)
	}
	return ListResult{Memories: items, Pagination: pagination.NewMeta(page, total)}, nil
}

// decorate добавляет авторов и has_liked двумя запросами на страницу
func (s *Service) decorate(db *gorm.DB, viewer *uuid.UUID, rows []memory.Memory) ([]Detail, error) {
	items := make([]Detail, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	memoryIDs := make([]uuid.UUID, len(rows))
	creatorIDs := make([]uuid.UUID, 0, len(rows))
	seen := make(map[uuid.UUID]bool)
	for i, m := range rows {
		memoryIDs[i] = m.ID
		if !seen[m.CreatorID] {
			seen[m.CreatorID] = true
			creatorIDs = append(creatorIDs, m.CreatorID)
		}
	}

	var creators []users.User
	if err := db.Where("id IN ?", creatorIDs).Find(&creators).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*users.User, len(creators))
	for i := range creators {
		byID[creators[i].ID] = &creators[i]
	}

	liked := make(map[uuid.UUID]bool)
	if viewer != nil {
		var ids []uuid.UUID
		if err := db.Model(&interaction.Interaction{}).
			Where("user_id = ? AND memory_id IN ? AND interaction_type = ? AND is_active", *viewer, memoryIDs, interaction.TypeLike).
			Pluck("memory_id", &ids).Error; err != nil {
			return nil, err
		}
		for _, id := range ids {
			liked[id] = true
		}
	}

	for i, m := range rows {
		items[i] = Detail{Memory: m, HasLiked: liked[m.ID]}
		if u, ok := byID[m.CreatorID]; ok {
			view := u.PublicView(viewer)
			items[i].Creator = &view
		}
	}
	return items, nil
}
