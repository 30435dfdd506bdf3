package discovery

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"memory-lane-backend/models/memory"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/geo"
)

const (
	defaultClusterRadius = 1000.0
	minClusterRadius     = 100.0
	maxClusterRadius     = 5000.0
	defaultMinMemories   = 2
	defaultAreasLimit    = 20
	maxAreasLimit        = 50
	areaCandidateLimit   = 5000
	topMemoriesPerArea   = 5
)

type AreasQuery struct {
	BBox          *geo.BBox
	TimeFilter    string
	ClusterRadius *float64
	MinMemories   int
	Limit         int
}

type Area struct {
	Center       geo.Point   `json:"center"`
	MemoryCount  int         `json:"memory_count"`
	Engagement   int64       `json:"engagement"`
	RadiusMeters float64     `json:"radius_meters"`
	TopMemoryIDs []uuid.UUID `json:"top_memory_ids"`
}

type areaPoint struct {
	ID            uuid.UUID
	Latitude      float64
	Longitude     float64
	LikesCount    int64
	CommentsCount int64
}

func (p areaPoint) point() geo.Point {
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// PopularAreas группирует публичные воспоминания в кластеры фиксированного радиуса
// и сортирует их по суммарной вовлеченности.
func (s *Service) PopularAreas(ctx context.Context, q AreasQuery) ([]Area, error) {
	if q.BBox != nil {
		if err := q.BBox.Validate(); err != nil {
			return nil, err
		}
	}
	radius := defaultClusterRadius
	if q.ClusterRadius != nil {
		radius = *q.ClusterRadius
	}
	if radius < minClusterRadius || radius > maxClusterRadius {
		return nil, apperr.Validation("cluster_radius", "must be between 100 and 5000 meters")
	}
	minMemories := q.MinMemories
	if minMemories == 0 {
		minMemories = defaultMinMemories
	}
	if minMemories < 1 {
		return nil, apperr.Validation("min_memories", "must be >= 1")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultAreasLimit
	}
	if limit > maxAreasLimit {
		limit = maxAreasLimit
	}
	now := s.now()
	since, err := TimeWindowStart(q.TimeFilter, now)
	if err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).
		Model(&memory.Memory{}).
		Scopes(memory.PublicOnly(now), scopeBBox(q.BBox))
	if since != nil {
		tx = tx.Where("memories.created_at >= ?", *since)
	}

	var points []areaPoint
	err = tx.Select("memories.id, memories.latitude, memories.longitude, memories.likes_count, memories.comments_count").
		Order("(memories.likes_count + memories.comments_count) DESC, memories.created_at DESC, memories.id ASC").
		Limit(areaCandidateLimit).
		Scan(&points).Error
	if err != nil {
		return nil, apperr.Transient(err)
	}

	return clusterAreas(points, radius, minMemories, limit), nil
}

type cluster struct {
	seed       geo.Point
	members    []areaPoint
	engagement int64
}

// clusterAreas - жадная кластеризация: точки идут по убыванию вовлеченности,
// каждая попадает в первый кластер, чей центр-затравка ближе radius, иначе открывает новый.
func clusterAreas(points []areaPoint, radius float64, minMemories, limit int) []Area {
	sorted := append([]areaPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LikesCount+sorted[i].CommentsCount > sorted[j].LikesCount+sorted[j].CommentsCount
	})

	var clusters []*cluster
	for _, p := range sorted {
		var target *cluster
		for _, c := range clusters {
			if geo.Distance(c.seed, p.point()) <= radius {
				target = c
				break
			}
		}
		if target == nil {
			target = &cluster{seed: p.point()}
			clusters = append(clusters, target)
		}
		target.members = append(target.members, p)
		target.engagement += p.LikesCount + p.CommentsCount
	}

	areas := make([]Area, 0, len(clusters))
	for _, c := range clusters {
		if len(c.members) < minMemories {
			continue
		}
		pts := make([]geo.Point, len(c.members))
		top := make([]uuid.UUID, 0, topMemoriesPerArea)
		for i, m := range c.members {
			pts[i] = m.point()
			if i < topMemoriesPerArea {
				top = append(top, m.ID)
			}
		}
		areas = append(areas, Area{
			Center:       geo.Centroid(pts),
			MemoryCount:  len(c.members),
			Engagement:   c.engagement,
			RadiusMeters: radius,
			TopMemoryIDs: top,
		})
	}

	sort.SliceStable(areas, func(i, j int) bool {
		if areas[i].Engagement != areas[j].Engagement {
			return areas[i].Engagement > areas[j].Engagement
		}
		return areas[i].MemoryCount > areas[j].MemoryCount
	})
	if len(areas) > limit {
		areas = areas[:limit]
	}
	return areas
}
