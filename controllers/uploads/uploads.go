package uploads

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/ratelimit"
	"memory-lane-backend/services/storage"
)

// multipartOverhead - запас на заголовки multipart поверх лимита файла
const multipartOverhead = 1 << 20

type Uploader interface {
	Upload(ctx context.Context, kind storage.Kind, filename string, size int64, r io.Reader) (storage.Object, error)
	MaxBytes() int64
}

type Limiter interface {
	Allow(ctx context.Context, action ratelimit.Action, subject string) ratelimit.Decision
}

var actions = map[storage.Kind]ratelimit.Action{
	storage.KindImage: ratelimit.UploadImage,
	storage.KindAudio: ratelimit.UploadAudio,
	storage.KindVideo: ratelimit.UploadVideo,
}

type Handler struct {
	uploader Uploader
	auth     authentication.Authenticator
	limiter  Limiter
	log      *zap.Logger
}

func New(uploader Uploader, auth authentication.Authenticator, limiter Limiter, log *zap.Logger) *Handler {
	return &Handler{uploader: uploader, auth: auth, limiter: limiter, log: log}
}

// Upload - POST /api/uploads/{kind}, файл в поле "file"
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	kind, err := storage.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		respond.Error(w, err)
		return
	}
	if d := h.limiter.Allow(r.Context(), actions[kind], claims.UserID.String()); !d.Allowed {
		h.log.Info("upload rate limited", zap.String("user_id", claims.UserID.String()), zap.String("kind", string(kind)))
		respond.RateLimited(w, d.RetryAfter)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploader.MaxBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(w, apperr.Validation("file", "file is too large"))
			return
		}
		respond.Error(w, apperr.Validation("file", "no file provided"))
		return
	}
	defer file.Close()

	obj, err := h.uploader.Upload(r.Context(), kind, header.Filename, header.Size, file)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.log.Error("upload failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		respond.Error(w, err)
		return
	}

	h.log.Info("file uploaded",
		zap.String("user_id", claims.UserID.String()),
		zap.String("kind", string(kind)),
		zap.Int64("size", obj.Size))
	respond.JSON(w, http.StatusCreated, map[string]any{
		"message": "File uploaded successfully",
		"file":    obj,
	})
}

// Limits - допустимые расширения и максимальный размер
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{
		"max_bytes":          h.uploader.MaxBytes(),
		"allowed_extensions": storage.AllowedExtensions(),
	})
}
