package discovery

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/geo"
)

const (
	defaultRouteRadius = 200.0
	maxRouteRadius     = 500.0
	minWaypoints       = 2
	maxWaypoints       = 25
	defaultRouteLimit  = 100
	maxRouteLimit      = 500
	perWaypointCap     = 1000
	routeParallelism   = 4
)

type RouteQuery struct {
	Viewer    *uuid.UUID
	Waypoints []geo.Point
	Radius    *float64
	Limit     int
}

type RouteMemory struct {
	Result
	NearestWaypoint int `json:"nearest_waypoint"`
}

// RouteResult - Total считает уникальные воспоминания до обрезки по limit.
// Truncated: ответ неполный - сработал limit или одна из точек уперлась в свой потолок,
// и тогда Total - нижняя оценка.
type RouteResult struct {
	Memories     []RouteMemory `json:"memories"`
	Waypoints    int           `json:"waypoints"`
	RadiusMeters float64       `json:"radius_meters"`
	Total        int           `json:"total"`
	Truncated    bool          `json:"truncated"`
}

// DiscoverRoute ищет воспоминания вдоль маршрута: радиус применяется к каждой точке,
// результаты объединяются без дублей с минимальным расстоянием до маршрута.
func (s *Service) DiscoverRoute(ctx context.Context, q RouteQuery) (RouteResult, error) {
	if len(q.Waypoints) < minWaypoints {
		return RouteResult{}, apperr.Validation("waypoints", fmt.Sprintf("at least %d waypoints are required", minWaypoints))
	}
	if len(q.Waypoints) > maxWaypoints {
		return RouteResult{}, apperr.Validation("waypoints", fmt.Sprintf("at most %d waypoints are allowed", maxWaypoints))
	}
	for i, wp := range q.Waypoints {
		if err := wp.Validate(); err != nil {
			return RouteResult{}, apperr.Validation(fmt.Sprintf("waypoints[%d]", i), apperr.MessageOf(err))
		}
	}
	radius, err := resolveRadius(q.Radius, defaultRouteRadius, s.cfg.MinRadius, math.Min(maxRouteRadius, s.cfg.MaxRadius), s.cfg.ClampRadius)
	if err != nil {
		return RouteResult{}, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultRouteLimit
	}
	if limit > maxRouteLimit {
		limit = maxRouteLimit
	}

	now := s.now()
	perWaypoint := make([][]Result, len(q.Waypoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(routeParallelism)
	for i, wp := range q.Waypoints {
		i, wp := i, wp // per-iteration copies (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			var rows []Result
			err := s.withinRadius(gctx, q.Viewer, wp, radius, now).
				Select("memories.*, ST_Distance(memories.location, ?) AS distance_meters", pointExpr(wp)).
				Order("distance_meters ASC, memories.created_at DESC, memories.id ASC").
				Limit(perWaypointCap).
				Scan(&rows).Error
			if err != nil {
				return apperr.Transient(err)
			}
			perWaypoint[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RouteResult{}, err
	}

	merged, total, truncated := cutRoute(perWaypoint, limit, perWaypointCap)
	flat := make([]Result, len(merged))
	for i := range merged {
		flat[i] = merged[i].Result
	}
	if err := s.markLiked(ctx, q.Viewer, flat); err == nil {
		for i := range merged {
			merged[i].HasLiked = flat[i].HasLiked
		}
	}

	return RouteResult{Memories: merged, Waypoints: len(q.Waypoints), RadiusMeters: radius, Total: total, Truncated: truncated}, nil
}

// cutRoute объединяет точки маршрута и обрезает результат до limit
func cutRoute(perWaypoint [][]Result, limit, waypointCap int) ([]RouteMemory, int, bool) {
	truncated := false
	for _, rows := range perWaypoint {
		if len(rows) >= waypointCap {
			truncated = true
		}
	}
	merged := mergeRoute(perWaypoint)
	total := len(merged)
	if total > limit {
		merged = merged[:limit]
		truncated = true
	}
	return merged, total, truncated
}

// mergeRoute объединяет результаты по точкам маршрута: одна запись на воспоминание,
// с минимальным расстоянием и индексом ближайшей точки. Порядок - по расстоянию.
func mergeRoute(perWaypoint [][]Result) []RouteMemory {
	byID := make(map[uuid.UUID]*RouteMemory)
	var order []uuid.UUID
	for wi, rows := range perWaypoint {
		for _, r := range rows {
			existing, ok := byID[r.ID]
			if !ok {
				rm := RouteMemory{Result: r, NearestWaypoint: wi}
				byID[r.ID] = &rm
				order = append(order, r.ID)
				continue
			}
			if r.DistanceMeters < existing.DistanceMeters {
				existing.DistanceMeters = r.DistanceMeters
				existing.NearestWaypoint = wi
			}
		}
	}

	out := make([]RouteMemory, 0, len(order))
	for _, id := range order {
		rm := *byID[id]
		rm.DistanceMeters = geo.Round2(rm.DistanceMeters)
		out = append(out, rm)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
