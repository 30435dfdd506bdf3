// Package respond writes JSON responses and maps service errors to HTTP statuses.
package respond

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"memory-lane-backend/logger"
	"memory-lane-backend/services/apperr"
)

// ErrorBody - тело ответа с ошибкой
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// Message - ответ вида {"message": "..."}
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"message": msg})
}

// StatusFor - HTTP-статус для категории ошибки
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindGone:
		return http.StatusGone
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error пишет ошибку сервиса. Внутренние ошибки логируются, клиенту уходит общий текст.
func Error(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	body := ErrorBody{Error: kind.String()}

	var appErr *apperr.Error
	switch {
	case kind == apperr.KindInternal || kind == apperr.KindTransient:
		logger.Get().Error("request failed", zap.Int("status", status), zap.Error(err))
		body.Message = http.StatusText(status)
	case errors.As(err, &appErr):
		body.Message = appErr.Message
		body.Field = appErr.Field
	default:
		body.Message = err.Error()
	}
	JSON(w, status, body)
}

// BadRequest - ошибка разбора запроса
func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: apperr.KindValidation.String(), Message: msg})
}

// DecodeJSON читает тело запроса в dst
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return apperr.Validation("body", "request body is required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// RateLimited - 429 с заголовком Retry-After в секундах
func RateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	JSON(w, http.StatusTooManyRequests, ErrorBody{Error: "rate_limited", Message: "rate limit exceeded, try again later"})
}
