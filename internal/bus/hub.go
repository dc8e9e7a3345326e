package bus

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 1 << 20
	clientBacklog  = 64
	broadcastDepth = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Broker binds to loopback; peers are local UI processes.
		return true
	},
}

// frame is the broker wire format. The payload (including the sender id
// inside it) is opaque to the hub: relaying, not routing, keeps the broker
// schema-free.
type frame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Hub relays every inbound frame to all connected clients, the sender
// included, so each process sees an identical broadcast stream.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*hubClient]bool
	register   chan *hubClient
	unregister chan *hubClient
	broadcast  chan []byte
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*hubClient]bool),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		broadcast:  make(chan []byte, broadcastDepth),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("bus: client connected (total %d)", n)
		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("bus: client disconnected (total %d)", n)
		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) fanout(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow client: drop the oldest frame and retry once.
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- msg:
			default:
				log.Printf("bus: client backlog full, dropping frame")
			}
		}
	}
}

// HandleWS upgrades a gin request into a hub connection.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("bus: upgrade failed: %v", err)
		return
	}
	client := &hubClient{hub: h, conn: conn, send: make(chan []byte, clientBacklog)}
	h.register <- client
	go client.writePump()
	go client.readPump()
}

type hubClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *hubClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close() //nolint:errcheck
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("bus: read error: %v", err)
			}
			return
		}
		// Reject frames that are not even shaped like a frame; everything
		// else is relayed untouched.
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Topic == "" {
			continue
		}
		c.hub.broadcast <- data
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
