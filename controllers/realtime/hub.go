// Package realtime pushes memory events to websocket clients.
//
// Each client sits in its own user room and, after join_location, in a location room:
// a circle around the point it reported. Events arrive from NATS and are fanned out
// to every client whose circle contains the event location.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"memory-lane-backend/services/geo"
	"memory-lane-backend/services/notify"
)

// Message - кадр, отправляемый клиенту
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	byUser  map[uuid.UUID]map[*Client]bool
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		byUser:  make(map[uuid.UUID]map[*Client]bool),
		log:     log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	room, ok := h.byUser[c.userID]
	if !ok {
		room = make(map[*Client]bool)
		h.byUser[c.userID] = room
	}
	room[c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	if room := h.byUser[c.userID]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	close(c.send)
}

// Online - есть ли у пользователя открытые соединения
func (h *Hub) Online(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent отправляет событие клиентам, в чью область попадает его точка
func (h *Hub) BroadcastEvent(ev notify.Event) int {
	frame, err := json.Marshal(Message{Type: ev.Type, Data: ev})
	if err != nil {
		h.log.Warn("marshal realtime event failed", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	var targets []*Client
	for c := range h.clients {
		if c.covers(ev.Location) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, frame)
}

// SendToUser - сообщение в персональную комнату
func (h *Hub) SendToUser(ev notify.UserEvent) int {
	frame, err := json.Marshal(Message{Type: ev.Type, Data: ev.Payload})
	if err != nil {
		h.log.Warn("marshal user event failed", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser[ev.UserID]))
	for c := range h.byUser[ev.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return h.deliver(targets, frame)
}

// deliver не блокируется: клиент с переполненной очередью отключается
func (h *Hub) deliver(targets []*Client, frame []byte) int {
	sent := 0
	var slow []*Client
	h.mu.RLock()
	for _, c := range targets {
		if !h.clients[c] {
			continue
		}
		select {
		case c.send <- frame:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow websocket client", zap.String("user_id", c.userID.String()))
		h.unregister(c)
	}
	return sent
}

// Subscribe подписывает хаб на события памяти и персональные события пользователей
func (h *Hub) Subscribe(nc *nats.Conn) ([]*nats.Subscription, error) {
	memorySub, err := nc.Subscribe(notify.SubjectMemoryEvents, func(msg *nats.Msg) {
		var ev notify.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			h.log.Warn("bad memory event", zap.Error(err))
			return
		}
		h.BroadcastEvent(ev)
	})
	if err != nil {
		return nil, err
	}

	userSub, err := nc.Subscribe(notify.SubjectUserEventsAll, func(msg *nats.Msg) {
		var ev notify.UserEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			h.log.Warn("bad user event", zap.Error(err))
			return
		}
		h.SendToUser(ev)
	})
	if err != nil {
		_ = memorySub.Unsubscribe()
		return nil, err
	}
	return []*nats.Subscription{memorySub, userSub}, nil
}

// Close закрывает все соединения
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.unregister(c)
	}
}

// Publisher - notify.Publisher для одного процесса без NATS: события сразу уходят в хаб
type Publisher struct {
	Hub *Hub
}

func (p Publisher) PublishEvent(ev notify.Event)               { p.Hub.BroadcastEvent(ev) }
func (p Publisher) PublishUserEvent(ev notify.UserEvent)       { p.Hub.SendToUser(ev) }
func (p Publisher) EnqueueNotification(notify.NotificationJob) {}
func (p Publisher) EnqueueProximity(notify.ProximityJob)       {}

var _ notify.Publisher = Publisher{}

// covers - точка внутри области клиента
func (c *Client) covers(p geo.Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.location == nil {
		return false
	}
	return geo.Distance(*c.location, p) <= c.radius
}
