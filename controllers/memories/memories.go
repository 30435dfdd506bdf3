package memories

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/services/memorystore"
	"memory-lane-backend/services/pagination"
	"memory-lane-backend/services/ratelimit"
)

// Store - операции memorystore, которые нужны HTTP-слою
type Store interface {
	Create(ctx context.Context, creatorID uuid.UUID, in memorystore.CreateInput) (*memory.Memory, error)
	Get(ctx context.Context, viewer *uuid.UUID, id uuid.UUID) (*memorystore.Detail, error)
	Update(ctx context.Context, userID, id uuid.UUID, in memorystore.UpdateInput) (*memory.Memory, error)
	AddTags(ctx context.Context, userID, id uuid.UUID, tags []string) (*memory.Memory, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	ByUser(ctx context.Context, viewer *uuid.UUID, userID uuid.UUID, page pagination.Params) (memorystore.ListResult, error)
	Feed(ctx context.Context, q memorystore.FeedQuery) (memorystore.ListResult, error)
	Search(ctx context.Context, q memorystore.SearchQuery) (memorystore.ListResult, error)
	RefreshUserStats(ctx context.Context, userID uuid.UUID) (memorystore.UserStats, error)
}

type Limiter interface {
	Allow(ctx context.Context, action ratelimit.Action, subject string) ratelimit.Decision
}

type Handler struct {
	store   Store
	auth    authentication.Authenticator
	limiter Limiter
	log     *zap.Logger
}

func New(store Store, auth authentication.Authenticator, limiter Limiter, log *zap.Logger) *Handler {
	return &Handler{store: store, auth: auth, limiter: limiter, log: log}
}

// CreateMemory - новое воспоминание текущего пользователя
func (h *Handler) CreateMemory(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	if d := h.limiter.Allow(r.Context(), ratelimit.CreateMemory, claims.UserID.String()); !d.Allowed {
		h.log.Info("create memory rate limited", zap.String("user_id", claims.UserID.String()))
		respond.RateLimited(w, d.RetryAfter)
		return
	}

	var in memorystore.CreateInput
	if err := respond.DecodeJSON(r, &in); err != nil {
		respond.Error(w, err)
		return
	}
	m, err := h.store.Create(r.Context(), claims.UserID, in)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]any{"message": "Memory created", "memory": m})
}

// GetMemory - карточка воспоминания, анонимный доступ только к публичным
func (h *Handler) GetMemory(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.auth.Viewer(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := respond.PathUUID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	detail, err := h.store.Get(r.Context(), viewer, id)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"memory": detail})
}

func (h *Handler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := respond.PathUUID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	var in memorystore.UpdateInput
	if err := respond.DecodeJSON(r, &in); err != nil {
		respond.Error(w, err)
		return
	}
	m, err := h.store.Update(r.Context(), claims.UserID, id, in)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"message": "Memory updated", "memory": m})
}

// AddTags - добавить теги к существующим
func (h *Handler) AddTags(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := respond.PathUUID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	m, err := h.store.AddTags(r.Context(), claims.UserID, id, req.Tags)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"memory": m})
}

func (h *Handler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	id, err := respond.PathUUID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), claims.UserID, id); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "Memory deleted")
}

// UserMemories - воспоминания пользователя {id}
func (h *Handler) UserMemories(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.auth.Viewer(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	userID, err := respond.PathUUID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	page, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.store.ByUser(r.Context(), viewer, userID, page)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// Feed - лента публичных воспоминаний
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.auth.Viewer(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	page, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	q := r.URL.Query()
	res, err := h.store.Feed(r.Context(), memorystore.FeedQuery{
		Viewer:      viewer,
		Sort:        q.Get("sort"),
		TimeFilter:  q.Get("time_filter"),
		ContentType: memory.ContentType(q.Get("content_type")),
		Page:        page,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.auth.Viewer(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	page, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	q := r.URL.Query()
	res, err := h.store.Search(r.Context(), memorystore.SearchQuery{
		Viewer:      viewer,
		Q:           q.Get("q"),
		Tags:        splitList(q.Get("tags")),
		ContentType: memory.ContentType(q.Get("content_type")),
		Page:        page,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// RefreshStats пересчитывает счетчики текущего пользователя
func (h *Handler) RefreshStats(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	stats, err := h.store.RefreshUserStats(r.Context(), claims.UserID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
