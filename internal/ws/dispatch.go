package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/command"
	"github.com/Kakashki-pro/Shitgram/internal/metrics"
	"github.com/Kakashki-pro/Shitgram/internal/models"
)

const handleTimeout = 10 * time.Second

var (
	errMalformed    = apperr.New(apperr.Validation, "malformed event")
	errUnknownEvent = apperr.New(apperr.Validation, "unknown event")
	errRateLimited  = apperr.New(apperr.Transient, "too many events, slow down")
)

type eventHandler func(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error

var eventHandlers = map[string]eventHandler{
	EventSendMessage:   handleSendMessage,
	EventDeleteMessage: handleDeleteMessage,
	EventTyping:        handleTyping,
	EventStopTyping:    handleStopTyping,
	EventCallInitiate:  handleCallInitiate,
	EventCallSignal:    handleCallSignal,
	EventCallAccept:    handleCallAccept,
	EventCallReject:    handleCallReject,
	EventCallEnd:       handleCallEnd,
}

// dispatch handles one inbound frame. Failures are reported to the
// originating session only.
func (h *Hub) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		metrics.Events.WithLabelValues("invalid", apperr.Validation.String()).Inc()
		h.sendError(c, errMalformed)
		return
	}
	handle, ok := eventHandlers[env.Event]
	if !ok {
		metrics.Events.WithLabelValues("unknown", apperr.Validation.String()).Inc()
		h.sendError(c, errUnknownEvent)
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, handleTimeout)
	defer cancel()
	err := handle(ctx, h, c, env.Data)
	metrics.Events.WithLabelValues(env.Event, metrics.Outcome(err)).Inc()
	if err != nil {
		if apperr.Message(err) == apperr.Generic {
			log.Printf("Error handling %s from %s: %v", env.Event, c.Username(), err)
		}
		h.sendError(c, err)
	}
}

func (h *Hub) sendError(c *Client, err error) {
	h.sendTo(c, EventError, errorEvent{Code: apperr.KindOf(err).String(), Message: apperr.Message(err)})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errMalformed
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errMalformed
	}
	return nil
}

func handleSendMessage(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p sendMessage
	if err := decode(data, &p); err != nil {
		return err
	}

	if command.IsCommand(p.Chat, p.Text) {
		res := h.commands.Execute(ctx, c.Username(), p.Text)
		h.apply(res.Effects)
		if res.Reply != "" {
			// Replies are private to the requester and never stored.
			reply := h.relay.Stamp(models.BotUsername, res.Reply, models.SettingsChat)
			h.SendToUser(c.Username(), EventNewMessage, reply)
		}
		return nil
	}

	msg, ch, err := h.relay.Submit(ctx, c.Username(), p.Text, p.Chat)
	if err != nil {
		return err
	}
	metrics.Messages.WithLabelValues(ch.Kind.String(), "stored").Inc()
	h.SendToAudience(ch, EventNewMessage, msg)
	if c.stopTyping(p.Chat) {
		h.fanout(ch, msg.Username, EventUserStoppedTyping, userTyping{Chat: p.Chat, Username: msg.Username})
	}
	return nil
}

func handleDeleteMessage(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p deleteMessage
	if err := decode(data, &p); err != nil {
		return err
	}
	ch, err := h.relay.Delete(ctx, c.Username(), p.ID, p.Chat)
	if err != nil {
		return err
	}
	metrics.Messages.WithLabelValues(ch.Kind.String(), "deleted").Inc()
	h.SendToAudience(ch, EventMessageDeleted, messageDeleted{ID: p.ID, Chat: p.Chat})
	return nil
}

func handleTyping(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p typingNotice
	if err := decode(data, &p); err != nil {
		return err
	}
	user := c.Username()
	ch, err := h.relay.Audience(ctx, user, p.Chat)
	if err != nil {
		return err
	}
	if h.cfg.TypingTimeout > 0 {
		c.startTyping(p.Chat, h.cfg.TypingTimeout, func() {
			name := c.Username()
			h.fanout(ch, name, EventUserStoppedTyping, userTyping{Chat: p.Chat, Username: name})
		})
	}
	h.fanout(ch, user, EventUserTyping, userTyping{Chat: p.Chat, Username: user})
	return nil
}

func handleStopTyping(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p typingNotice
	if err := decode(data, &p); err != nil {
		return err
	}
	user := c.Username()
	ch, err := h.relay.Audience(ctx, user, p.Chat)
	if err != nil {
		return err
	}
	c.stopTyping(p.Chat)
	h.fanout(ch, user, EventUserStoppedTyping, userTyping{Chat: p.Chat, Username: user})
	return nil
}

// stoppedTyping clears a typing notice left behind by a closed session.
func (h *Hub) stoppedTyping(user, chat string) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	ch, err := h.relay.Audience(ctx, user, chat)
	if err != nil {
		return
	}
	h.fanout(ch, user, EventUserStoppedTyping, userTyping{Chat: chat, Username: user})
}

func handleCallInitiate(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p callInitiate
	if err := decode(data, &p); err != nil {
		return err
	}
	return h.calls.Initiate(c.Username(), p.To, p.Offer)
}

func handleCallSignal(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p callSignal
	if err := decode(data, &p); err != nil {
		return err
	}
	return h.calls.Signal(c.Username(), p.To, p.Signal)
}

func handleCallAccept(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p callAccept
	if err := decode(data, &p); err != nil {
		return err
	}
	return h.calls.Accept(c.Username(), p.Caller, p.Answer)
}

func handleCallReject(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p callReject
	if err := decode(data, &p); err != nil {
		return err
	}
	return h.calls.Reject(c.Username(), p.Caller)
}

func handleCallEnd(ctx context.Context, h *Hub, c *Client, data json.RawMessage) error {
	var p callEnd
	if err := decode(data, &p); err != nil {
		return err
	}
	return h.calls.End(c.Username(), p.To)
}

// apply emits the side effects of a command.
func (h *Hub) apply(effects []command.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case command.ChatCreated:
			for _, to := range e.To {
				h.SendToUser(to, EventChatCreated, chatCreated{Chat: e.Chat, IsDM: e.IsDM, User2: e.User2})
			}
		case command.MessagePosted:
			metrics.Messages.WithLabelValues(channel.Restricted.String(), "stored").Inc()
			for _, to := range e.To {
				h.SendToUser(to, EventNewMessage, e.Message)
			}
		case command.ChatDeleted:
			for _, to := range e.To {
				h.SendToUser(to, EventChatDeleted, chatDeleted{Chat: e.Chat})
			}
		case command.Renamed:
			h.rename(e.Old, e.New)
		case command.EasterEgg:
			h.Broadcast(EventEasterEgg, nil)
		}
	}
}
