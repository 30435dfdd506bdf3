package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/geo"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32

	DefaultLocationRadius = 1000.0
	MinLocationRadius     = 50.0
	MaxLocationRadius     = 5000.0
)

// Типы входящих сообщений
const (
	msgJoinLocation  = "join_location"
	msgLeaveLocation = "leave_location"
	msgPing          = "ping"
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID

	mu       sync.Mutex
	location *geo.Point
	radius   float64
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer), userID: userID}
}

type incoming struct {
	Type      string  `json:"type"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// joinLocation задает область клиента. Радиус 0 - значение по умолчанию, остальное обрезается до границ.
func (c *Client) joinLocation(lat, lon, radius float64) (geo.Point, float64, error) {
	p := geo.Point{Latitude: lat, Longitude: lon}
	if err := p.Validate(); err != nil {
		return geo.Point{}, 0, err
	}
	switch {
	case radius == 0:
		radius = DefaultLocationRadius
	case radius < MinLocationRadius:
		radius = MinLocationRadius
	case radius > MaxLocationRadius:
		radius = MaxLocationRadius
	}
	c.mu.Lock()
	c.location = &p
	c.radius = radius
	c.mu.Unlock()
	return p, radius, nil
}

func (c *Client) leaveLocation() {
	c.mu.Lock()
	c.location = nil
	c.radius = 0
	c.mu.Unlock()
}

// handle обрабатывает одно входящее сообщение и возвращает ответ
func (c *Client) handle(raw []byte) Message {
	var msg incoming
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{Type: "error", Data: map[string]string{"message": "invalid message"}}
	}
	switch msg.Type {
	case msgJoinLocation:
		p, radius, err := c.joinLocation(msg.Latitude, msg.Longitude, msg.Radius)
		if err != nil {
			return Message{Type: "error", Data: map[string]string{"message": apperr.MessageOf(err)}}
		}
		return Message{Type: "location_joined", Data: map[string]any{
			"latitude":      p.Latitude,
			"longitude":     p.Longitude,
			"radius_meters": radius,
		}}
	case msgLeaveLocation:
		c.leaveLocation()
		return Message{Type: "location_left"}
	case msgPing:
		return Message{Type: "pong", Data: map[string]any{"timestamp": time.Now().UTC()}}
	}
	return Message{Type: "error", Data: map[string]string{"message": "unknown message type"}}
}

func (c *Client) reply(m Message) {
	frame, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.hub.deliver([]*Client{c}, frame)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket closed", zap.String("user_id", c.userID.String()), zap.Error(err))
			}
			return
		}
		c.reply(c.handle(raw))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handler - /ws. Токен передается в Authorization или в ?token=.
type Handler struct {
	hub      *Hub
	auth     authentication.Authenticator
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, auth authentication.Authenticator, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.ValidateToken(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h.hub, conn, claims.UserID)
	h.hub.register(c)
	c.reply(Message{Type: "connected", Data: map[string]any{"user_id": claims.UserID}})

	go c.writePump()
	go c.readPump()
}
