// Package discovery answers location queries over memories: radius search, heatmaps,
// popular areas, route search, nearby creators and per-area stats.
//
// Spatial filtering runs in PostGIS (ST_DWithin / ST_Distance on geography, so distances
// are geodesic meters). Shaping, clustering and route merging happen in Go.
package discovery

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memory-lane-backend/config"
	"memory-lane-backend/models/interaction"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/geo"
	"memory-lane-backend/services/pagination"
)

const (
	defaultPerPage = 50

	SortDistance = "distance"
	SortRecent   = "recent"
	SortPopular  = "popular"
	SortFeatured = "featured"
)

// pointSQL - точка запроса как geography. Аргументы: longitude, latitude.
const pointSQL = "ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography"

type Service struct {
	db  *gorm.DB
	cfg config.GeoConfig
	log *zap.Logger
	now func() time.Time
}

func New(db *gorm.DB, cfg config.GeoConfig, log *zap.Logger) *Service {
	return &Service{db: db, cfg: cfg, log: log, now: func() time.Time { return time.Now().UTC() }}
}

type DiscoverQuery struct {
	Viewer      *uuid.UUID
	Point       geo.Point
	Radius      *float64
	ContentType memory.ContentType
	TimeFilter  string
	Sort        string
	ExcludeOwn  bool
	Page        pagination.Params
}

// Result - воспоминание с расстоянием до точки запроса
type Result struct {
	memory.Memory
	DistanceMeters float64 `json:"distance_meters" gorm:"column:distance_meters"`
	HasLiked       bool    `json:"has_liked" gorm:"-"`
}

type SearchLocation struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

type DiscoverResult struct {
	Memories       []Result        `json:"memories"`
	SearchLocation SearchLocation  `json:"search_location"`
	Pagination     pagination.Meta `json:"pagination"`
}

// ResolveRadius применяет значение по умолчанию и границы из конфигурации.
// nil - радиус не передан; явный 0 проверяется как любое другое значение.
func (s *Service) ResolveRadius(radius *float64) (float64, error) {
	return resolveRadius(radius, s.cfg.DefaultRadius, s.cfg.MinRadius, s.cfg.MaxRadius, s.cfg.ClampRadius)
}

func resolveRadius(r *float64, def, min, max float64, clamp bool) (float64, error) {
	if r == nil {
		return def, nil
	}
	radius := *r
	if math.IsNaN(radius) || math.IsInf(radius, 0) {
		return 0, apperr.Validation("radius", "must be a number")
	}
	if radius >= min && radius <= max {
		return radius, nil
	}
	if !clamp {
		return 0, apperr.Validation("radius", fmt.Sprintf("must be between %g and %g meters", min, max))
	}
	return math.Min(math.Max(radius, min), max), nil
}

// TimeWindowStart - начало окна для today/week/month; nil для all
func TimeWindowStart(filter string, now time.Time) (*time.Time, error) {
	var start time.Time
	switch filter {
	case "", "all":
		return nil, nil
	case "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case "week":
		start = now.Add(-7 * 24 * time.Hour)
	case "month":
		start = now.Add(-30 * 24 * time.Hour)
	default:
		return nil, apperr.Validation("time_filter", "must be one of today, week, month, all")
	}
	return &start, nil
}

func orderFor(sort string) (string, error) {
	switch sort {
	case "", SortDistance:
		return "distance_meters ASC, memories.created_at DESC, memories.id ASC", nil
	case SortRecent:
		return "memories.created_at DESC, distance_meters ASC, memories.id ASC", nil
	case SortPopular:
		return "(memories.likes_count + memories.comments_count) DESC, distance_meters ASC, memories.created_at DESC, memories.id ASC", nil
	case SortFeatured:
		return "memories.is_featured DESC, distance_meters ASC, memories.created_at DESC, memories.id ASC", nil
	}
	return "", apperr.Validation("sort", "must be one of distance, recent, popular, featured")
}

func pointExpr(p geo.Point) clause.Expr {
	return gorm.Expr(pointSQL, p.Longitude, p.Latitude)
}

// withinRadius - общий фильтр радиуса и видимости
func (s *Service) withinRadius(ctx context.Context, viewer *uuid.UUID, p geo.Point, radius float64, now time.Time) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&memory.Memory{}).
		Scopes(memory.VisibleTo(viewer, now)).
		Where("ST_DWithin(memories.location, ?, ?)", pointExpr(p), radius)
}

// Discover - поиск воспоминаний в радиусе от точки
func (s *Service) Discover(ctx context.Context, q DiscoverQuery) (DiscoverResult, error) {
	if err := q.Point.Validate(); err != nil {
		return DiscoverResult{}, err
	}
	radius, err := s.ResolveRadius(q.Radius)
	if err != nil {
		return DiscoverResult{}, err
	}
	if q.ContentType != "" && !q.ContentType.Valid() {
		return DiscoverResult{}, apperr.Validation("content_type", "must be one of photo, audio, video, text")
	}
	order, err := orderFor(q.Sort)
	if err != nil {
		return DiscoverResult{}, err
	}
	page, err := q.Page.Normalize(defaultPerPage, s.cfg.MaxPerPage)
	if err != nil {
		return DiscoverResult{}, err
	}
	now := s.now()
	since, err := TimeWindowStart(q.TimeFilter, now)
	if err != nil {
		return DiscoverResult{}, err
	}

	filtered := func() *gorm.DB {
		tx := s.withinRadius(ctx, q.Viewer, q.Point, radius, now)
		if q.ContentType != "" {
			tx = tx.Where("memories.content_type = ?", q.ContentType)
		}
		if since != nil {
			tx = tx.Where("memories.created_at >= ?", *since)
		}
		if q.ExcludeOwn && q.Viewer != nil {
			tx = tx.Where("memories.creator_id <> ?", *q.Viewer)
		}
		return tx
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return DiscoverResult{}, apperr.Transient(err)
	}

	results := make([]Result, 0, page.PerPage)
	err = filtered().
		Select("memories.*, ST_Distance(memories.location, ?) AS distance_meters", pointExpr(q.Point)).
		Order(order).
		Limit(page.PerPage).
		Offset(page.Offset()).
		Scan(&results).Error
	if err != nil {
		return DiscoverResult{}, apperr.Transient(err)
	}

	for i := range results {
		results[i].DistanceMeters = geo.Round2(results[i].DistanceMeters)
	}
	if err := s.markLiked(ctx, q.Viewer, results); err != nil {
		s.log.Warn("has_liked lookup failed", zap.Error(err))
	}
	s.recordDiscoveries(ctx, q.Viewer, results)

	return DiscoverResult{
		Memories:       results,
		SearchLocation: SearchLocation{Latitude: q.Point.Latitude, Longitude: q.Point.Longitude, RadiusMeters: radius},
		Pagination:     pagination.NewMeta(page, total),
	}, nil
}

// markLiked проставляет has_liked одним запросом
func (s *Service) markLiked(ctx context.Context, viewer *uuid.UUID, results []Result) error {
	if viewer == nil || len(results) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	var liked []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&interaction.Interaction{}).
		Where("user_id = ? AND memory_id IN ? AND interaction_type = ? AND is_active", *viewer, ids, interaction.TypeLike).
		Pluck("memory_id", &liked).Error
	if err != nil {
		return err
	}
	set := make(map[uuid.UUID]bool, len(liked))
	for _, id := range liked {
		set[id] = true
	}
	for i := range results {
		results[i].HasLiked = set[results[i].ID]
	}
	return nil
}

// recordDiscoveries увеличивает счетчики открытий. Ошибки не влияют на ответ.
func (s *Service) recordDiscoveries(ctx context.Context, viewer *uuid.UUID, results []Result) {
	if viewer == nil || len(results) == 0 {
		return
	}
	var others []uuid.UUID
	for _, r := range results {
		if r.CreatorID != *viewer {
			others = append(others, r.ID)
		}
	}
	if len(others) == 0 {
		return
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table("users").Where("id = ?", *viewer).
			UpdateColumn("discoveries_count", gorm.Expr("discoveries_count + ?", len(others))).Error; err != nil {
			return err
		}
		return tx.Model(&memory.Memory{}).Where("id IN ?", others).
			UpdateColumn("discoveries_count", gorm.Expr("discoveries_count + 1")).Error
	})
	if err != nil {
		s.log.Warn("discovery counters not updated", zap.String("viewer", viewer.String()), zap.Error(err))
	}
}

type DistanceResult struct {
	DistanceMeters float64   `json:"distance_meters"`
	DistanceKm     float64   `json:"distance_km"`
	Source         geo.Point `json:"source"`
	Destination    geo.Point `json:"destination"`
}

// Distance - геодезическое расстояние между двумя точками
func (s *Service) Distance(a, b geo.Point) (DistanceResult, error) {
	if err := a.Validate(); err != nil {
		return DistanceResult{}, err
	}
	if err := b.Validate(); err != nil {
		return DistanceResult{}, err
	}
	d := geo.Distance(a, b)
	return DistanceResult{
		DistanceMeters: geo.Round2(d),
		DistanceKm:     math.Round(d) / 1000,
		Source:         a,
		Destination:    b,
	}, nil
}
