package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"memory-lane-backend/models/memory"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/geo"
	"memory-lane-backend/services/pagination"
)

const (
	defaultNearbyUsersRadius = 1000.0
	defaultNearbyUsersPage   = 20
	maxNearbyUsersPage       = 50
)

type NearbyUsersQuery struct {
	Viewer *uuid.UUID
	Point  geo.Point
	Radius *float64
	// только пользователи с включенным location_sharing_enabled (рассылка о новых воспоминаниях)
	RequireLocationSharing bool
	Page                   pagination.Params
}

type NearbyUser struct {
	users.PublicProfile
	MemoriesInArea        int64   `json:"memories_in_area"`
	ClosestMemoryDistance float64 `json:"closest_memory_distance"`
}

type NearbyUsersResult struct {
	Users          []NearbyUser    `json:"users"`
	SearchLocation SearchLocation  `json:"search_location"`
	Pagination     pagination.Meta `json:"pagination"`
}

type nearbyUserRow struct {
	ID              uuid.UUID
	Username        string
	DisplayName     string
	ProfilePhotoURL string
	Bio             string
	MemoriesCount   int64
	PrivacySettings datatypes.JSONType[users.PrivacySettings]
	LastActive      *time.Time
	MemoriesInArea  int64
	ClosestDistance float64
}

// NearbyUsers - пользователи, у которых есть публичные воспоминания в радиусе
func (s *Service) NearbyUsers(ctx context.Context, q NearbyUsersQuery) (NearbyUsersResult, error) {
	if err := q.Point.Validate(); err != nil {
		return NearbyUsersResult{}, err
	}
	radius, err := resolveRadius(q.Radius, defaultNearbyUsersRadius, s.cfg.MinRadius, s.cfg.MaxRadius, s.cfg.ClampRadius)
	if err != nil {
		return NearbyUsersResult{}, err
	}
	page, err := q.Page.Normalize(defaultNearbyUsersPage, maxNearbyUsersPage)
	if err != nil {
		return NearbyUsersResult{}, err
	}
	now := s.now()

	filtered := func() *gorm.DB {
		tx := s.db.WithContext(ctx).
			Table("users").
			Joins("JOIN memories ON memories.creator_id = users.id").
			Scopes(memory.PublicOnly(now)).
			Where("ST_DWithin(memories.location, ?, ?)", pointExpr(q.Point), radius).
			Where("users.is_active = ?", true).
			Where("COALESCE((users.privacy_settings->>'memory_discovery')::boolean, true)")
		if q.Viewer != nil {
			tx = tx.Where("users.id <> ?", *q.Viewer)
		}
		if q.RequireLocationSharing {
			tx = tx.Where("users.location_sharing_enabled = ?", true)
		}
		return tx
	}

	var total int64
	if err := filtered().Distinct("users.id").Count(&total).Error; err != nil {
		return NearbyUsersResult{}, apperr.Transient(err)
	}

	var rows []nearbyUserRow
	err = filtered().
		Select("users.id, users.username, users.display_name, users.profile_photo_url, users.bio, "+
			"users.memories_count, users.privacy_settings, users.last_active, "+
			"COUNT(memories.id) AS memories_in_area, "+
			"MIN(ST_Distance(memories.location, ?)) AS closest_distance", pointExpr(q.Point)).
		Group("users.id").
		Order("closest_distance ASC, users.id ASC").
		Limit(page.PerPage).
		Offset(page.Offset()).
		Scan(&rows).Error
	if err != nil {
		return NearbyUsersResult{}, apperr.Transient(err)
	}

	out := make([]NearbyUser, 0, len(rows))
	for _, r := range rows {
		u := users.User{
			ID:              r.ID,
			Username:        r.Username,
			DisplayName:     r.DisplayName,
			ProfilePhotoURL: r.ProfilePhotoURL,
			Bio:             r.Bio,
			MemoriesCount:   r.MemoriesCount,
			PrivacySettings: r.PrivacySettings,
			LastActive:      r.LastActive,
		}
		out = append(out, NearbyUser{
			PublicProfile:         u.PublicView(q.Viewer),
			MemoriesInArea:        r.MemoriesInArea,
			ClosestMemoryDistance: geo.Round2(r.ClosestDistance),
		})
	}

	return NearbyUsersResult{
		Users:          out,
		SearchLocation: SearchLocation{Latitude: q.Point.Latitude, Longitude: q.Point.Longitude, RadiusMeters: radius},
		Pagination:     pagination.NewMeta(page, total),
	}, nil
}

type LocationStats struct {
	SearchLocation SearchLocation   `json:"search_location"`
	TotalMemories  int64            `json:"total_memories"`
	UniqueCreators int64            `json:"unique_creators"`
	TotalLikes     int64            `json:"total_likes"`
	TotalComments  int64            `json:"total_comments"`
	ByContentType  map[string]int64 `json:"by_content_type"`
	LatestMemoryAt *time.Time       `json:"latest_memory_at,omitempty"`
}

// LocationStats - сводка по видимым воспоминаниям в радиусе
func (s *Service) LocationStats(ctx context.Context, viewer *uuid.UUID, p geo.Point, r *float64) (LocationStats, error) {
	if err := p.Validate(); err != nil {
		return LocationStats{}, err
	}
	radius, err := s.ResolveRadius(r)
	if err != nil {
		return LocationStats{}, err
	}
	now := s.now()

	var totals struct {
		TotalMemories  int64
		UniqueCreators int64
		TotalLikes     int64
		TotalComments  int64
		LatestMemoryAt *time.Time
	}
	err = s.withinRadius(ctx, viewer, p, radius, now).
		Select("COUNT(*) AS total_memories, COUNT(DISTINCT memories.creator_id) AS unique_creators, " +
			"COALESCE(SUM(memories.likes_count), 0) AS total_likes, " +
			"COALESCE(SUM(memories.comments_count), 0) AS total_comments, " +
			"MAX(memories.created_at) AS latest_memory_at").
		Scan(&totals).Error
	if err != nil {
		return LocationStats{}, apperr.Transient(err)
	}

	var byType []struct {
		ContentType string
		Count       int64
	}
	err = s.withinRadius(ctx, viewer, p, radius, now).
		Select("memories.content_type, COUNT(*) AS count").
		Group("memories.content_type").
		Scan(&byType).Error
	if err != nil {
		return LocationStats{}, apperr.Transient(err)
	}

	stats := LocationStats{
		SearchLocation: SearchLocation{Latitude: p.Latitude, Longitude: p.Longitude, RadiusMeters: radius},
		TotalMemories:  totals.TotalMemories,
		UniqueCreators: totals.UniqueCreators,
		TotalLikes:     totals.TotalLikes,
		TotalComments:  totals.TotalComments,
		LatestMemoryAt: totals.LatestMemoryAt,
		ByContentType:  make(map[string]int64, len(byType)),
	}
	for _, t := range byType {
		stats.ByContentType[t.ContentType] = t.Count
	}
	return stats, nil
}
