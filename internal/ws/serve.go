package ws

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

func newUpgrader(origins []string) websocket.Upgrader {
	u := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(origins) == 0 {
		// The upgrader's default only admits same-host origins.
		return u
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			u.CheckOrigin = func(*http.Request) bool { return true }
			return u
		}
		if n, ok := normalizeOrigin(o); ok {
			allowed[n] = true
		} else if o != "" {
			log.Printf("Ignoring invalid origin in configuration: %q", o)
		}
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		n, ok := normalizeOrigin(origin)
		return ok && allowed[n]
	}
	return u
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// ServeWs upgrades the request and binds the new session to the already
// authenticated user. Nothing the client sends later can change that
// identity.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID int, username string) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade failed for %s: %v", username, err)
		return
	}

	client := newClient(hub, conn, userID, username)
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
