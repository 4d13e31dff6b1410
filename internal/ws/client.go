package ws

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Client is one websocket session bound to one authenticated user.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID int

	limiter *rate.Limiter

	mu       sync.Mutex
	username string
	typing   map[string]*time.Timer
}

func newClient(hub *Hub, conn *websocket.Conn, userID int, username string) *Client {
	c := &Client{
		id:       uuid.NewString(),
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		userID:   userID,
		username: username,
		typing:   make(map[string]*time.Timer),
	}
	if hub.cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(hub.cfg.RateLimit, hub.cfg.RateBurst)
	}
	if conn != nil && hub.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
	}
	return c
}

// Username returns the identity the session is currently bound to. A
// rename rebinds it.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) setUsername(name string) {
	c.mu.Lock()
	c.username = name
	c.mu.Unlock()
}

func (c *Client) allow() bool {
	if c.limiter == nil || c.limiter.Allow() {
		return true
	}
	metrics.RateLimited.Inc()
	return false
}

// readPump decodes inbound events and dispatches them one at a time, so the
// events of one session are handled in the order they were sent.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.allow() {
			log.Printf("Rate limit exceeded for %s (%s); dropping event", c.Username(), c.id)
			c.hub.sendError(c, errRateLimited)
			continue
		}
		c.hub.dispatch(c, raw)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.Username(), c.hub.cfg.MaxMessageSize)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		log.Printf("Unexpected websocket error from %s: %v", c.Username(), err)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	default:
		log.Printf("Client %s (%s) disconnected: %v", c.Username(), c.id, err)
	}
}

// writePump drains the send queue. Every envelope goes out as its own
// websocket text message.
func (c *Client) writePump() {
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
			if err := c.writeQueued(message); err != nil {
				log.Printf("Error writing to %s: %v", c.Username(), err)
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

func (c *Client) writeQueued(message []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		return err
	}
	// flush whatever queued up meanwhile under the same deadline
	n := len(c.send)
	for i := 0; i < n; i++ {
		next, ok := <-c.send
		if !ok {
			return nil
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, next); err != nil {
			return err
		}
	}
	return nil
}

// startTyping (re)arms the expiry timer for chat and reports whether the
// user was not already typing there.
func (c *Client) startTyping(chat string, after time.Duration, expire func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.typing[chat]
	if ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(after, func() {
		c.mu.Lock()
		current := c.typing[chat] == t
		if current {
			delete(c.typing, chat)
		}
		c.mu.Unlock()
		if current {
			expire()
		}
	})
	c.typing[chat] = t
	return !ok
}

// stopTyping clears the timer for chat and reports whether one was armed.
func (c *Client) stopTyping(chat string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.typing[chat]
	if ok {
		t.Stop()
		delete(c.typing, chat)
	}
	return ok
}

// clearTyping stops every timer and returns the chats the user was typing in.
func (c *Client) clearTyping() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	chats := make([]string, 0, len(c.typing))
	for chat, t := range c.typing {
		t.Stop()
		chats = append(chats, chat)
	}
	c.typing = make(map[string]*time.Timer)
	return chats
}
