package interactions

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/models/interaction"
	"memory-lane-backend/services/engagement"
	"memory-lane-backend/services/pagination"
)

// Engagement - операции агрегатора взаимодействий
type Engagement interface {
	Like(ctx context.Context, userID, memoryID uuid.UUID) (engagement.LikeResult, error)
	Unlike(ctx context.Context, userID, memoryID uuid.UUID) (engagement.LikeResult, error)
	HasLiked(ctx context.Context, userID, memoryID uuid.UUID) (bool, error)
	Comment(ctx context.Context, userID, memoryID uuid.UUID, content string) (engagement.CommentResult, error)
	UpdateComment(ctx context.Context, userID, commentID uuid.UUID, content string) (*interaction.Interaction, error)
	DeleteComment(ctx context.Context, userID, commentID uuid.UUID) (engagement.DeleteResult, error)
	Share(ctx context.Context, userID, memoryID uuid.UUID, platform, message string) (*interaction.Interaction, error)
	Report(ctx context.Context, userID, memoryID uuid.UUID, reason, details string) (*interaction.Interaction, error)
	Comments(ctx context.Context, viewer *uuid.UUID, memoryID uuid.UUID, page pagination.Params) (engagement.ListResult, error)
	Likes(ctx context.Context, viewer *uuid.UUID, memoryID uuid.UUID, page pagination.Params) (engagement.ListResult, error)
	UserInteractions(ctx context.Context, viewer, userID uuid.UUID, kind interaction.Type, page pagination.Params) (engagement.ListResult, error)
}

type Handler struct {
	svc  Engagement
	auth authentication.Authenticator
}

func New(svc Engagement, auth authentication.Authenticator) *Handler {
	return &Handler{svc: svc, auth: auth}
}

// authorized - текущий пользователь и id воспоминания/комментария из пути
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) (userID, id uuid.UUID, ok bool) {
	claims, err := h.auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}
	id, err = respond.PathUUID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return claims.UserID, id, true
}

func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	userID, memoryID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Like(r.Context(), userID, memoryID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	status := http.StatusOK
	if res.Changed {
		status = http.StatusCreated
	}
	respond.JSON(w, status, res)
}

func (h *Handler) Unlike(w http.ResponseWriter, r *http.Request) {
	userID, memoryID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Unlike(r.Context(), userID, memoryID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// CheckLike - лайкнул ли текущий пользователь воспоминание
func (h *Handler) CheckLike(w http.ResponseWriter, r *http.Request) {
	userID, memoryID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	liked, err := h.svc.HasLiked(r.Context(), userID, memoryID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"memory_id": memoryID, "liked": liked})
}

type commentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, memoryID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.svc.Comment(r.Context(), userID, memoryID, req.Content)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, res)
}

func (h *Handler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	userID, commentID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	comment, err := h.svc.UpdateComment(r.Context(), userID, commentID, req.Content)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"comment": comment})
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, commentID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	res, err := h.svc.DeleteComment(r.Context(), userID, commentID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	userID, memoryID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	var req struct {
		Platform string `json:"platform"`
		Message  string `json:"message"`
	}
	if r.ContentLength != 0 {
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, err)
			return
		}
	}
	share, err := h.svc.Share(r.Context(), userID, memoryID, req.Platform, req.Message)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]any{"share": share})
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	userID, memoryID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason  string `json:"reason"`
		Details string `json:"details"`
	}
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	report, err := h.svc.Report(r.Context(), userID, memoryID, req.Reason, req.Details)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]any{"message": "Report submitted", "report_id": report.ID})
}

// Comments и Likes доступны анонимно для публичных воспоминаний
func (h *Handler) Comments(w http.ResponseWriter, r *http.Request) {
	h.listForMemory(w, r, h.svc.Comments)
}

func (h *Handler) Likes(w http.ResponseWriter, r *http.Request) {
	h.listForMemory(w, r, h.svc.Likes)
}

type memoryLister func(ctx context.Context, viewer *uuid.UUID, memoryID uuid.UUID, page pagination.Params) (engagement.ListResult, error)

func (h *Handler) listForMemory(w http.ResponseWriter, r *http.Request, list memoryLister) {
	viewer, err := h.auth.Viewer(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	memoryID, err := respond.PathUUID(r, "id")
	if err != nil {
		respond.Error(w, err)
		return
	}
	page, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	res, err := list(r.Context(), viewer, memoryID, page)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// UserInteractions - история взаимодействий пользователя, только своя
func (h *Handler) UserInteractions(w http.ResponseWriter, r *http.Request) {
	viewer, userID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	kind := interaction.Type(r.URL.Query().Get("type"))
	page, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	res, err := h.svc.UserInteractions(r.Context(), viewer, userID, kind, page)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}
