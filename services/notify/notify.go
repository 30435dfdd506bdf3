package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"memory-lane-backend/services/geo"
)

const (
	SubjectNotificationJob = "jobs.notification"
	SubjectProximityJob    = "jobs.proximity"
	SubjectMemoryEvents    = "events.memory"
	subjectUserEventsFmt   = "events.user.%s"
	SubjectUserEventsAll   = "events.user.*"

	WorkerQueue = "workers"
)

// Типы realtime-событий
const (
	EventNewMemoryNearby   = "new_memory_nearby"
	EventMemoryInteraction = "memory_interaction"
	EventNotification      = "notification"
)

// Event - realtime-событие для подписчиков по локации
type Event struct {
	Type      string         `json:"type"`
	MemoryID  uuid.UUID      `json:"memory_id"`
	ActorID   uuid.UUID      `json:"actor_id"`
	Location  geo.Point      `json:"location"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NotificationJob - задача воркеру: сохранить уведомление и отправить его пользователю
type NotificationJob struct {
	RecipientID uuid.UUID  `json:"recipient_id"`
	ActorID     *uuid.UUID `json:"actor_id,omitempty"`
	MemoryID    *uuid.UUID `json:"memory_id,omitempty"`
	Type        string     `json:"type"`
	Message     string     `json:"message"`
}

// ProximityJob - новое публичное воспоминание, воркер ищет пользователей рядом
type ProximityJob struct {
	MemoryID  uuid.UUID `json:"memory_id"`
	CreatorID uuid.UUID `json:"creator_id"`
	Title     string    `json:"title"`
	Location  geo.Point `json:"location"`
}

// UserEvent - сообщение в персональную комнату пользователя
type UserEvent struct {
	UserID  uuid.UUID `json:"user_id"`
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
}

// Publisher отправляет события без ожидания результата. Ошибки только логируются.
type Publisher interface {
	PublishEvent(ev Event)
	EnqueueNotification(job NotificationJob)
	EnqueueProximity(job ProximityJob)
	PublishUserEvent(ev UserEvent)
}

func UserSubject(userID uuid.UUID) string {
	return fmt.Sprintf(subjectUserEventsFmt, userID)
}

// NATS - Publisher поверх nats.Conn
type NATS struct {
	conn *nats.Conn
	log  *zap.Logger
}

func Connect(url string, log *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("memory-lane"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info("NATS connected", zap.String("url", url))
	return &NATS{conn: conn, log: log}, nil
}

func (n *NATS) Conn() *nats.Conn { return n.conn }

func (n *NATS) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
	}
}

func (n *NATS) PublishEvent(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	n.publish(SubjectMemoryEvents, ev)
}

func (n *NATS) EnqueueNotification(job NotificationJob) {
	n.publish(SubjectNotificationJob, job)
}

func (n *NATS) EnqueueProximity(job ProximityJob) {
	n.publish(SubjectProximityJob, job)
}

func (n *NATS) PublishUserEvent(ev UserEvent) {
	n.publish(UserSubject(ev.UserID), ev)
}

func (n *NATS) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		n.log.Warn("marshal event failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.log.Warn("publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Nop - когда NATS не настроен
type Nop struct{}

func (Nop) PublishEvent(Event)                  {}
func (Nop) EnqueueNotification(NotificationJob) {}
func (Nop) EnqueueProximity(ProximityJob)       {}
func (Nop) PublishUserEvent(UserEvent)          {}

// Recorder запоминает всё опубликованное. Используется в тестах.
type Recorder struct {
	mu            sync.Mutex
	Events        []Event
	Notifications []NotificationJob
	Proximity     []ProximityJob
	UserEvents    []UserEvent
}

func (r *Recorder) PublishEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
}

func (r *Recorder) EnqueueNotification(job NotificationJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notifications = append(r.Notifications, job)
}

func (r *Recorder) EnqueueProximity(job ProximityJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Proximity = append(r.Proximity, job)
}

func (r *Recorder) PublishUserEvent(ev UserEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UserEvents = append(r.UserEvents, ev)
}

func (r *Recorder) Snapshot() (events []Event, notifications []NotificationJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.Events...), append([]NotificationJob(nil), r.Notifications...)
}
