package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"callcenter/internal/queue"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// ErrHubClosed is returned by Notifier methods once Run has exited.
var ErrHubClosed = errors.New("websocket hub is closed")

// WSMessage is the frame every client receives.
type WSMessage struct {
	EventType string      `json:"event_type"`
	UserID    uint        `json:"user_id,omitempty"`
	Data      interface{} `json:"data"`
}

// envelope targets one user, or everyone when userID is 0.
type envelope struct {
	userID  uint
	message []byte
}

// Hub keeps websocket clients grouped by user ID. A user may hold several
// connections, one per open tab.
type Hub struct {
	clients    map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	send       chan envelope
	done       chan struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
}

var _ queue.Notifier = (*Hub)(nil)

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		send:       make(chan envelope, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Run processes hub channels until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
		case env := <-h.send:
			h.mu.Lock()
			if env.userID == 0 {
				for _, clients := range h.clients {
					h.deliver(clients, env.message)
				}
			} else if clients, ok := h.clients[env.userID]; ok {
				h.deliver(clients, env.message)
			}
			h.mu.Unlock()
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.remove(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// deliver drops clients whose buffer is full. Caller holds mu.
func (h *Hub) deliver(clients map[*Client]bool, message []byte) {
	for client := range clients {
		select {
		case client.Send <- message:
		default:
			h.logger.Warn().Uint("user_id", client.UserID).Msg("dropping slow websocket client")
			h.remove(client)
		}
	}
}

// remove closes and forgets client. Caller holds mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.UserID)
	}
}

// Connected reports whether userID has at least one open connection.
func (h *Hub) Connected(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *Hub) publish(ctx context.Context, userID uint, eventType string, data interface{}) error {
	payload, err := json.Marshal(WSMessage{EventType: eventType, UserID: userID, Data: data})
	if err != nil {
		return err
	}
	select {
	case h.send <- envelope{userID: userID, message: payload}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) NotifyPositionUpdate(ctx context.Context, ev queue.PositionChanged) error {
	return h.publish(ctx, ev.UserID, ev.Name(), ev)
}

func (h *Hub) NotifyYourTurn(ctx context.Context, ev queue.YourTurn) error {
	return h.publish(ctx, ev.UserID, ev.Name(), ev)
}

func (h *Hub) NotifyCallAssigned(ctx context.Context, ev queue.CallAssigned) error {
	return h.publish(ctx, ev.AgentID, ev.Name(), ev)
}

func (h *Hub) BroadcastQueueUpdate(ctx context.Context, ev queue.QueueBroadcast) error {
	return h.publish(ctx, 0, ev.Name(), ev)
}

func (h *Hub) NotifyCallEnded(ctx context.Context, ev queue.CallEnded) error {
	return h.publish(ctx, ev.UserID, ev.Name(), ev)
}

// Client is one websocket connection.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uint
}

// readPump only watches for disconnects; clients never send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Debug().Err(err).Uint("user_id", c.UserID).Msg("websocket closed")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Upgrader accepts every origin; CORS is enforced on the HTTP routes.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades an authenticated request and registers the caller.
// Route: GET /api/queue/ws
func (h *Hub) ServeWS(c *gin.Context) {
	userID := c.GetUint("userID")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Uint("user_id", userID).Msg("websocket upgrade failed")
		return
	}
	client := &Client{
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		UserID: userID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
