package ws

import (
	"encoding/json"
)

// Inbound event names.
const (
	EventSendMessage   = "send_message"
	EventDeleteMessage = "delete_message"
	EventTyping        = "typing"
	EventStopTyping    = "stop_typing"
	EventCallInitiate  = "call_initiate"
	EventCallSignal    = "call_signal"
	EventCallAccept    = "call_accept"
	EventCallReject    = "call_reject"
	EventCallEnd       = "call_end"
)

// Outbound event names. Call events are named by the calls package.
const (
	EventConnected         = "connected"
	EventNewMessage        = "new_message"
	EventMessageDeleted    = "message_deleted"
	EventUserTyping        = "user_typing"
	EventUserStoppedTyping = "user_stopped_typing"
	EventChatCreated       = "chat_created"
	EventChatDeleted       = "chat_deleted"
	EventEasterEgg         = "easter_egg"
	EventError             = "error"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Inbound payloads. Identity fields a client may still send (username, from)
// are not decoded: the sender is always the connection's bound user.

type sendMessage struct {
	Text string `json:"text"`
	Chat string `json:"chat"`
}

type deleteMessage struct {
	ID   string `json:"id"`
	Chat string `json:"chat"`
}

type typingNotice struct {
	Chat string `json:"chat"`
}

type callInitiate struct {
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer"`
}

type callSignal struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

type callAccept struct {
	Caller string          `json:"caller"`
	Answer json.RawMessage `json:"answer"`
}

type callReject struct {
	Caller string `json:"caller"`
}

type callEnd struct {
	To string `json:"to"`
}

// Outbound payloads.

type connected struct {
	Username string `json:"username"`
}

type messageDeleted struct {
	ID   string `json:"id"`
	Chat string `json:"chat"`
}

type userTyping struct {
	Chat     string `json:"chat"`
	Username string `json:"username"`
}

type chatCreated struct {
	Chat  string `json:"chat"`
	IsDM  bool   `json:"isDM,omitempty"`
	User2 string `json:"user2,omitempty"`
}

type chatDeleted struct {
	Chat string `json:"chat"`
}

type errorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
