// Package worker consumes background jobs from the NATS queue group: it stores
// notifications, fans out proximity alerts for new memories and expires old ones.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/discovery"
	"memory-lane-backend/services/notify"
	"memory-lane-backend/services/pagination"
)

const (
	proximityPageSize = 50
	proximityMaxPages = 10
	handleTimeout     = 30 * time.Second
)

// NearbyFinder - поиск пользователей рядом с новым воспоминанием
type NearbyFinder interface {
	NearbyUsers(ctx context.Context, q discovery.NearbyUsersQuery) (discovery.NearbyUsersResult, error)
}

// Cleaner - деактивация истекших воспоминаний
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type Worker struct {
	db              *gorm.DB
	nearby          NearbyFinder
	cleaner         Cleaner
	events          notify.Publisher
	log             *zap.Logger
	proximityRadius *float64
	cleanupInterval time.Duration
}

type Options struct {
	ProximityRadius float64
	CleanupInterval time.Duration
}

func New(db *gorm.DB, nearby NearbyFinder, cleaner Cleaner, events notify.Publisher, log *zap.Logger, opts Options) *Worker {
	if events == nil {
		events = notify.Nop{}
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Hour
	}
	// без PROXIMITY_RADIUS действует радиус поиска по умолчанию
	var radius *float64
	if opts.ProximityRadius > 0 {
		radius = &opts.ProximityRadius
	}
	return &Worker{
		db:              db,
		nearby:          nearby,
		cleaner:         cleaner,
		events:          events,
		log:             log,
		proximityRadius: radius,
		cleanupInterval: opts.CleanupInterval,
	}
}

// HandleNotification сохраняет уведомление и отправляет его в комнату получателя
func (w *Worker) HandleNotification(ctx context.Context, job notify.NotificationJob) (*interaction.Notification, error) {
	if job.RecipientID == uuid.Nil {
		return nil, apperr.Validation("recipient_id", "is required")
	}
	kind := interaction.NotificationType(job.Type)
	switch kind {
	case interaction.NotifyLike, interaction.NotifyComment, interaction.NotifyShare, interaction.NotifyNearbyMemory:
	default:
		return nil, apperr.Validation("type", fmt.Sprintf("unknown notification type %q", job.Type))
	}
	if job.ActorID != nil && *job.ActorID == job.RecipientID {
		return nil, nil
	}

	n := &interaction.Notification{
		UserID:   job.RecipientID,
		ActorID:  job.ActorID,
		MemoryID: job.MemoryID,
		Type:     kind,
		Message:  job.Message,
	}
	if err := w.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}

	w.events.PublishUserEvent(notify.UserEvent{
		UserID:  job.RecipientID,
		Type:    notify.EventNotification,
		Payload: n,
	})
	return n, nil
}

// HandleProximity уведомляет пользователей с включенным location sharing,
// у которых есть публичные воспоминания рядом с новым.
func (w *Worker) HandleProximity(ctx context.Context, job notify.ProximityJob) (int, error) {
	creator := job.CreatorID
	memoryID := job.MemoryID
	message := fmt.Sprintf("A new memory %q was shared near you", job.Title)

	notified := 0
	for page := 1; page <= proximityMaxPages; page++ {
		res, err := w.nearby.NearbyUsers(ctx, discovery.NearbyUsersQuery{
			Viewer:                 &creator,
			Point:                  job.Location,
			Radius:                 w.proximityRadius,
			RequireLocationSharing: true,
			Page:                   pagination.Params{Page: page, PerPage: proximityPageSize},
		})
		if err != nil {
			return notified, fmt.Errorf("find nearby users: %w", err)
		}
		for _, u := range res.Users {
			n, err := w.HandleNotification(ctx, notify.NotificationJob{
				RecipientID: u.ID,
				ActorID:     &creator,
				MemoryID:    &memoryID,
				Type:        string(interaction.NotifyNearbyMemory),
				Message:     message,
			})
			if err != nil {
				w.log.Warn("proximity notification failed", zap.String("user_id", u.ID.String()), zap.Error(err))
				continue
			}
			if n != nil {
				notified++
			}
		}
		if !res.Pagination.HasNext {
			break
		}
	}
	return notified, nil
}

// CleanupOnce - один проход очистки истекших воспоминаний
func (w *Worker) CleanupOnce(ctx context.Context) {
	n, err := w.cleaner.CleanupExpired(ctx)
	if err != nil {
		w.log.Error("cleanup expired memories failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("expired memories deactivated", zap.Int64("count", n))
	}
}

// Subscribe подписывается на очереди задач в группе workers
func (w *Worker) Subscribe(ctx context.Context, nc *nats.Conn) ([]*nats.Subscription, error) {
	notifSub, err := nc.QueueSubscribe(notify.SubjectNotificationJob, notify.WorkerQueue, func(msg *nats.Msg) {
		var job notify.NotificationJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			w.log.Warn("bad notification job", zap.Error(err))
			return
		}
		hctx, cancel := context.WithTimeout(ctx, handleTimeout)
		defer cancel()
		if _, err := w.HandleNotification(hctx, job); err != nil {
			w.log.Error("notification job failed", zap.String("recipient_id", job.RecipientID.String()), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", notify.SubjectNotificationJob, err)
	}

	proxSub, err := nc.QueueSubscribe(notify.SubjectProximityJob, notify.WorkerQueue, func(msg *nats.Msg) {
		var job notify.ProximityJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			w.log.Warn("bad proximity job", zap.Error(err))
			return
		}
		hctx, cancel := context.WithTimeout(ctx, handleTimeout)
		defer cancel()
		n, err := w.HandleProximity(hctx, job)
		if err != nil {
			w.log.Error("proximity job failed", zap.String("memory_id", job.MemoryID.String()), zap.Error(err))
			return
		}
		w.log.Info("proximity job done", zap.String("memory_id", job.MemoryID.String()), zap.Int("notified", n))
	})
	if err != nil {
		_ = notifSub.Unsubscribe()
		return nil, fmt.Errorf("subscribe %s: %w", notify.SubjectProximityJob, err)
	}
	return []*nats.Subscription{notifSub, proxSub}, nil
}

// Run обрабатывает очереди и запускает очистку по таймеру до отмены ctx
func (w *Worker) Run(ctx context.Context, nc *nats.Conn) error {
	subs, err := w.Subscribe(ctx, nc)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range subs {
			_ = s.Drain()
		}
	}()
	w.log.Info("worker started",
		zap.String("queue", notify.WorkerQueue),
		zap.Duration("cleanup_interval", w.cleanupInterval))

	w.CleanupOnce(ctx)
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return nil
		case <-ticker.C:
			w.CleanupOnce(ctx)
		}
	}
}
