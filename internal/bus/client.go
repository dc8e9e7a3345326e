package bus

import (
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectDelay = 5 * time.Second
	sendDepth      = 100
)

// Client is the process-side Bus over a websocket connection to the broker.
// It reconnects forever until Close; frames emitted while disconnected are
// buffered up to sendDepth and dropped beyond that (the late-join state
// request recovers whatever a dropped snapshot would have carried).
type Client struct {
	addr string

	mu        sync.Mutex
	listeners map[string]map[int]Handler
	nextID    int

	send chan []byte
	done chan struct{}
	once sync.Once
}

// Dial starts a client against the broker address (host:port).
func Dial(addr string) *Client {
	c := &Client{
		addr:      addr,
		listeners: make(map[string]map[int]Handler),
		send:      make(chan []byte, sendDepth),
		done:      make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Client) Emit(topic string, payload []byte) error {
	data, err := json.Marshal(frame{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
	default:
		log.Printf("bus: send buffer full, dropping frame on %s", topic)
	}
	return nil
}

func (c *Client) Listen(topic string, fn Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners[topic] == nil {
		c.listeners[topic] = make(map[int]Handler)
	}
	id := c.nextID
	c.nextID++
	c.listeners[topic][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[topic], id)
	}
}

func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Client) loop() {
	for {
		c.connect()
		select {
		case <-c.done:
			return
		case <-time.After(reconnectDelay):
			log.Printf("bus: reconnecting to %s", c.addr)
		}
	}
}

func (c *Client) connect() {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Printf("bus: connect %s: %v", u.String(), err)
		return
	}
	defer conn.Close() //nolint:errcheck

	connClosed := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(conn, connClosed)
	}()

	c.readPump(conn)
	close(connClosed)
	conn.Close() //nolint:errcheck
	<-writerDone
}

func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("bus: read error: %v", err)
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Topic == "" {
			continue
		}
		c.dispatch(f.Topic, f.Payload)
	}
}

func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.listeners[topic]))
	for _, fn := range c.listeners[topic] {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(payload)
	}
}

func (c *Client) writePump(conn *websocket.Conn, connClosed <-chan struct{}) {
	for {
		select {
		case <-connClosed:
			return
		case <-c.done:
			conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait)) //nolint:errcheck
			return
		case data := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
