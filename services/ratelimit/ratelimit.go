// Package ratelimit enforces per-user hourly quotas in Redis (GCRA via redis_rate).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Action string

const (
	CreateMemory Action = "create_memory"
	Discover     Action = "discover"
	UploadImage  Action = "upload_image"
	UploadAudio  Action = "upload_audio"
	UploadVideo  Action = "upload_video"
)

// Limits - квоты в час на пользователя
var Limits = map[Action]int{
	CreateMemory: 10,
	Discover:     100,
	UploadImage:  20,
	UploadAudio:  10,
	UploadVideo:  5,
}

// Decision - результат проверки квоты
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter - nil-безопасен: без Redis все запросы пропускаются
type Limiter struct {
	limiter *redis_rate.Limiter
	log     *zap.Logger
}

func New(rdb *redis.Client, log *zap.Logger) *Limiter {
	if rdb == nil {
		return &Limiter{log: log}
	}
	return &Limiter{limiter: redis_rate.NewLimiter(rdb), log: log}
}

func key(action Action, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", action, subject)
}

// Allow списывает один запрос из квоты action для subject (id пользователя или IP).
// Ошибка Redis не блокирует запрос.
func (l *Limiter) Allow(ctx context.Context, action Action, subject string) Decision {
	perHour, ok := Limits[action]
	if !ok || l == nil || l.limiter == nil {
		return Decision{Allowed: true, Limit: perHour, Remaining: perHour}
	}

	res, err := l.limiter.Allow(ctx, key(action, subject), redis_rate.PerHour(perHour))
	if err != nil {
		l.log.Warn("rate limiter unavailable, allowing request",
			zap.String("action", string(action)), zap.Error(err))
		return Decision{Allowed: true, Limit: perHour, Remaining: perHour}
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Limit:      perHour,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}
}

// Reset сбрасывает квоту (используется в тестах и администрированием)
func (l *Limiter) Reset(ctx context.Context, action Action, subject string) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Reset(ctx, key(action, subject))
}
