package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"drumbeat/pkg/auth"
	"drumbeat/pkg/logging"
	"drumbeat/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is handled at the router level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans newly detected inquiries out to connected dashboard sessions.
type Hub struct {
	logger     logging.Logger
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates a Hub. Call Run before serving connections.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run owns the client set. Slow clients are dropped rather than allowed to
// back up the broadcast path.
func (hub *Hub) Run() {
	for {
		select {
		case <-hub.done:
			for client := range hub.clients {
				close(client.send)
				delete(hub.clients, client)
			}
			return
		case client := <-hub.register:
			hub.clients[client] = true
		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				close(client.send)
			}
		case message := <-hub.broadcast:
			for client := range hub.clients {
				select {
				case client.send <- message:
				default:
					delete(hub.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Stop shuts the hub down.
func (hub *Hub) Stop() {
	close(hub.done)
}

// BroadcastInquiry pushes one inquiry to all connected sessions.
func (hub *Hub) BroadcastInquiry(inq *models.Inquiry) {
	payload, err := json.Marshal(gin.H{"type": "inquiry", "inquiry": inq})
	if err != nil {
		hub.logger.WithError(err).Error("Failed to encode inquiry broadcast")
		return
	}
	select {
	case hub.broadcast <- payload:
	default:
		hub.logger.Warn("Inquiry broadcast dropped, hub backlog full")
	}
}

// ServeWS upgrades a dashboard session to the live inquiry feed. Browsers
// cannot set headers on websocket dials, so the token is also accepted as a
// query parameter.
func (h *Handlers) ServeWS(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			if bearer := c.GetHeader("Authorization"); len(bearer) > 7 && bearer[:7] == "Bearer " {
				token = bearer[7:]
			}
		}
		if _, err := auth.ValidateJWT(token, jwtSecret); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.WithError(err).Warn("Websocket upgrade failed")
			return
		}

		client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
		h.hub.register <- client

		go client.writePump()
		go client.readPump(h.hub)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the feed is one-way, reading only to
// notice disconnects and answer pings.
func (c *wsClient) readPump(hub *Hub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
