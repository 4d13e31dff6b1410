package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/calls"
	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/command"
	"github.com/Kakashki-pro/Shitgram/internal/metrics"
	"github.com/Kakashki-pro/Shitgram/internal/relay"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Config tunes the session gateway. Zero values disable the corresponding
// limit or timer.
type Config struct {
	MaxMessageSize int64
	// RateLimit is the sustained number of inbound events per second a
	// session may send; RateBurst is the bucket size.
	RateLimit     rate.Limit
	RateBurst     int
	RingTimeout   time.Duration
	TypingTimeout time.Duration
	// AllowedOrigins lists the browser origins allowed to open a session.
	// "*" allows any; an empty list allows only same-host origins.
	AllowedOrigins []string
}

type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	relay    *relay.Relay
	commands *command.Interpreter
	calls    *calls.Relay

	mu sync.RWMutex
	// Registered clients, indexed by the username they are bound to.
	users map[string]map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(cfg Config, relay *relay.Relay, commands *command.Interpreter) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:        cfg,
		relay:      relay,
		commands:   commands,
		users:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.upgrader = newUpgrader(cfg.AllowedOrigins)
	h.calls = calls.NewRelay(h, cfg.RingTimeout)
	return h
}

// Calls exposes the call relay fed by this hub's sessions.
func (h *Hub) Calls() *calls.Relay {
	return h.calls
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Shutdown closes every session and stops Run.
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
}

func (h *Hub) add(c *Client) {
	name := c.Username()
	h.mu.Lock()
	if h.users[name] == nil {
		h.users[name] = make(map[*Client]bool)
	}
	h.users[name][c] = true
	count := len(h.users[name])
	h.mu.Unlock()

	metrics.Sessions.Inc()
	log.Printf("Client %s registered for %s (%d sessions)", c.id, name, count)
	h.sendTo(c, EventConnected, connected{Username: name})
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	name := c.Username()
	sessions, ok := h.users[name]
	if !ok || !sessions[c] {
		h.mu.Unlock()
		return
	}
	delete(sessions, c)
	last := len(sessions) == 0
	if last {
		delete(h.users, name)
	}
	close(c.send)
	h.mu.Unlock()

	metrics.Sessions.Dec()
	log.Printf("Client %s unregistered for %s", c.id, name)

	// Audience lookups hit the store, so they must not hold up Run.
	chats := c.clearTyping()
	if len(chats) > 0 || last {
		go func() {
			for _, chat := range chats {
				h.stoppedTyping(name, chat)
			}
			if last {
				h.calls.Hangup(name)
			}
		}()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, sessions := range h.users {
		for c := range sessions {
			c.clearTyping()
			close(c.send)
			metrics.Sessions.Dec()
		}
		delete(h.users, name)
	}
	log.Printf("Hub stopped")
}

// rename rebinds every live session of oldName, and its call, to newName.
func (h *Hub) rename(oldName, newName string) {
	h.mu.Lock()
	sessions := h.users[oldName]
	delete(h.users, oldName)
	if len(sessions) > 0 {
		if h.users[newName] == nil {
			h.users[newName] = make(map[*Client]bool)
		}
		for c := range sessions {
			c.setUsername(newName)
			h.users[newName][c] = true
		}
	}
	h.mu.Unlock()
	h.calls.Rename(oldName, newName)
}

// deliver queues frame on c. The caller holds h.mu. A session whose queue
// is full is disconnected rather than blocking everyone else.
func (h *Hub) deliver(c *Client, frame []byte) bool {
	if !h.users[c.Username()][c] {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		log.Printf("Send queue full for %s (%s); closing session", c.Username(), c.id)
		if c.conn != nil {
			c.conn.Close()
		}
		return false
	}
}

func (h *Hub) sendTo(c *Client, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		log.Printf("Error encoding %s: %v", event, err)
		return
	}
	h.mu.RLock()
	h.deliver(c, frame)
	h.mu.RUnlock()
}

// SendToUser delivers an event to every live session of username and
// reports how many sessions it reached.
func (h *Hub) SendToUser(username, event string, payload any) int {
	frame, err := encode(event, payload)
	if err != nil {
		log.Printf("Error encoding %s: %v", event, err)
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.users[username] {
		if h.deliver(c, frame) {
			n++
		}
	}
	return n
}

// Broadcast delivers an event to every live session.
func (h *Hub) Broadcast(event string, payload any) {
	h.fanout(nil, "", event, payload)
}

// SendToAudience delivers an event to the sessions of everyone ch addresses.
func (h *Hub) SendToAudience(ch *channel.Channel, event string, payload any) {
	h.fanout(ch, "", event, payload)
}

// fanout delivers to the audience of ch, or to everyone when ch is nil,
// skipping the sessions of except.
func (h *Hub) fanout(ch *channel.Channel, except, event string, payload any) {
	frame, err := encode(event, payload)
	if err != nil {
		log.Printf("Error encoding %s: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ch == nil || ch.Everyone() {
		for name, sessions := range h.users {
			if name == except {
				continue
			}
			for c := range sessions {
				h.deliver(c, frame)
			}
		}
		return
	}
	for _, member := range ch.Members {
		if member == except {
			continue
		}
		for c := range h.users[member] {
			h.deliver(c, frame)
		}
	}
}

// Online reports whether username has at least one live session.
func (h *Hub) Online(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[username]) > 0
}
