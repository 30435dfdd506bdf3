package geospatial

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/discovery"
	"memory-lane-backend/services/geo"
	"memory-lane-backend/services/ratelimit"
)

// Discovery - геозапросы, которые обслуживает этот контроллер
type Discovery interface {
	Discover(ctx context.Context, q discovery.DiscoverQuery) (discovery.DiscoverResult, error)
	Heatmap(ctx context.Context, q discovery.HeatmapQuery) (discovery.Heatmap, error)
	PopularAreas(ctx context.Context, q discovery.AreasQuery) ([]discovery.Area, error)
	DiscoverRoute(ctx context.Context, q discovery.RouteQuery) (discovery.RouteResult, error)
	Distance(a, b geo.Point) (discovery.DistanceResult, error)
	NearbyUsers(ctx context.Context, q discovery.NearbyUsersQuery) (discovery.NearbyUsersResult, error)
	LocationStats(ctx context.Context, viewer *uuid.UUID, p geo.Point, radius *float64) (discovery.LocationStats, error)
}

type Limiter interface {
	Allow(ctx context.Context, action ratelimit.Action, subject string) ratelimit.Decision
}

type Handler struct {
	svc     Discovery
	auth    authentication.Authenticator
	limiter Limiter
	log     *zap.Logger
}

func New(svc Discovery, auth authentication.Authenticator, limiter Limiter, log *zap.Logger) *Handler {
	return &Handler{svc: svc, auth: auth, limiter: limiter, log: log}
}

// viewer - необязательная авторизация + квота discover для авторизованных
func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	viewer, err := h.auth.Viewer(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return nil, false
	}
	if viewer != nil {
		if d := h.limiter.Allow(r.Context(), ratelimit.Discover, viewer.String()); !d.Allowed {
			h.log.Info("discover rate limited", zap.String("user_id", viewer.String()))
			respond.RateLimited(w, d.RetryAfter)
			return nil, false
		}
	}
	return viewer, true
}

func queryPoint(r *http.Request, latName, lonName string) (geo.Point, error) {
	lat, err := respond.RequiredFloat(r, latName)
	if err != nil {
		return geo.Point{}, err
	}
	lon, err := respond.RequiredFloat(r, lonName)
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{Latitude: lat, Longitude: lon}, nil
}

// queryBBox - bbox из north/south/east/west. required=false: nil, если не передан ни один параметр.
func queryBBox(r *http.Request, required bool) (*geo.BBox, error) {
	q := r.URL.Query()
	if !required && q.Get("north") == "" && q.Get("south") == "" && q.Get("east") == "" && q.Get("west") == "" {
		return nil, nil
	}
	var b geo.BBox
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"north", &b.North}, {"south", &b.South}, {"east", &b.East}, {"west", &b.West}} {
		v, err := respond.RequiredFloat(r, f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return &b, nil
}

// optionalFloat - nil, если параметра нет в запросе
func optionalFloat(r *http.Request, name string) (*float64, error) {
	v, ok, err := respond.QueryFloat(r, name)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// Discover - воспоминания в радиусе от точки
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	p, err := queryPoint(r, "latitude", "longitude")
	if err != nil {
		respond.Error(w, err)
		return
	}
	radius, err := optionalFloat(r, "radius")
	if err != nil {
		respond.Error(w, err)
		return
	}
	page, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}

	q := r.URL.Query()
	res, err := h.svc.Discover(r.Context(), discovery.DiscoverQuery{
		Viewer:      viewer,
		Point:       p,
		Radius:      radius,
		ContentType: memory.ContentType(q.Get("content_type")),
		TimeFilter:  q.Get("time_filter"),
		Sort:        q.Get("sort"),
		ExcludeOwn:  respond.QueryBool(r, "exclude_own"),
		Page:        page,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	bbox, err := queryBBox(r, true)
	if err != nil {
		respond.Error(w, err)
		return
	}
	grid, err := respond.QueryInt(r, "grid_size")
	if err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.svc.Heatmap(r.Context(), discovery.HeatmapQuery{BBox: *bbox, GridSize: grid})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// PopularAreas - кластеры с наибольшей вовлеченностью
func (h *Handler) PopularAreas(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	bbox, err := queryBBox(r, false)
	if err != nil {
		respond.Error(w, err)
		return
	}
	q := discovery.AreasQuery{BBox: bbox, TimeFilter: r.URL.Query().Get("time_filter")}
	if q.ClusterRadius, err = optionalFloat(r, "cluster_radius"); err != nil {
		respond.Error(w, err)
		return
	}
	if q.MinMemories, err = respond.QueryInt(r, "min_memories"); err != nil {
		respond.Error(w, err)
		return
	}
	if q.Limit, err = respond.QueryInt(r, "limit"); err != nil {
		respond.Error(w, err)
		return
	}
	areas, err := h.svc.PopularAreas(r.Context(), q)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"areas": areas, "total": len(areas)})
}

type routeRequest struct {
	Waypoints []geo.Point `json:"waypoints"`
	Radius    *float64    `json:"radius"`
	Limit     int         `json:"limit"`
}

// DiscoverRoute - воспоминания вдоль маршрута
func (h *Handler) DiscoverRoute(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	var req routeRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if len(req.Waypoints) == 0 {
		respond.Error(w, apperr.Validation("waypoints", "at least 2 waypoints are required"))
		return
	}
	res, err := h.svc.DiscoverRoute(r.Context(), discovery.RouteQuery{
		Viewer:    viewer,
		Waypoints: req.Waypoints,
		Radius:    req.Radius,
		Limit:     req.Limit,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) Distance(w http.ResponseWriter, r *http.Request) {
	a, err := queryPoint(r, "lat1", "lon1")
	if err != nil {
		respond.Error(w, err)
		return
	}
	b, err := queryPoint(r, "lat2", "lon2")
	if err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.svc.Distance(a, b)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// NearbyUsers - авторы публичных воспоминаний рядом
func (h *Handler) NearbyUsers(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	p, err := queryPoint(r, "latitude", "longitude")
	if err != nil {
		respond.Error(w, err)
		return
	}
	radius, err := optionalFloat(r, "radius")
	if err != nil {
		respond.Error(w, err)
		return
	}
	page, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.svc.NearbyUsers(r.Context(), discovery.NearbyUsersQuery{
		Viewer: viewer,
		Point:  p,
		Radius: radius,
		Page:   page,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) LocationStats(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.viewer(w, r)
	if !ok {
		return
	}
	p, err := queryPoint(r, "latitude", "longitude")
	if err != nil {
		respond.Error(w, err)
		return
	}
	radius, err := optionalFloat(r, "radius")
	if err != nil {
		respond.Error(w, err)
		return
	}
	stats, err := h.svc.LocationStats(r.Context(), viewer, p, radius)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}
