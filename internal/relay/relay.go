// Package relay persists chat messages and decides which channel audience a
// stored message, a deletion or a typing notice belongs to.
package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/models"
	"github.com/google/uuid"
)

type Store interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id, chat string) (bool, error)
	GetChatMessages(ctx context.Context, chat string) ([]models.Message, error)
}

type Relay struct {
	store    Store
	registry *channel.Registry
	now      func() time.Time
}

func New(store Store, registry *channel.Registry) *Relay {
	return &Relay{store: store, registry: registry, now: time.Now}
}

// NewMessageID returns a unique id made of the millisecond timestamp and a
// random suffix. Only uniqueness is guaranteed, not ordering.
func NewMessageID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return fmt.Sprintf("%d_%s", at.UnixMilli(), suffix)
}

// Stamp builds an unsaved message with a fresh id and the current time.
func (r *Relay) Stamp(author, text, chat string) *models.Message {
	now := r.now()
	return &models.Message{
		ID:        NewMessageID(now),
		Username:  author,
		Text:      text,
		Chat:      chat,
		CreatedAt: now.UnixMilli(),
	}
}

// Submit validates, stamps and stores a message and returns it together with
// the channel whose audience should receive it.
func (r *Relay) Submit(ctx context.Context, author, text, chat string) (*models.Message, *channel.Channel, error) {
	if author == "" || text == "" || chat == "" {
		return nil, nil, apperr.New(apperr.Validation, "username, text and chat are required")
	}
	ch, err := r.registry.Resolve(ctx, chat)
	if err != nil {
		return nil, nil, err
	}
	if !ch.Includes(author) {
		return nil, nil, apperr.New(apperr.Authorization, "not allowed to write to "+chat)
	}

	msg := r.Stamp(author, text, chat)
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		return nil, nil, err
	}
	return msg, ch, nil
}

// Delete removes message id from chat. The author and the administrator may
// delete; the caller broadcasts only after this returns without error.
func (r *Relay) Delete(ctx context.Context, requester, id, chat string) (*channel.Channel, error) {
	if id == "" || chat == "" {
		return nil, apperr.New(apperr.Validation, "id and chat are required")
	}
	ch, err := r.registry.Resolve(ctx, chat)
	if err != nil {
		return nil, err
	}

	msg, err := r.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.Chat != chat {
		return nil, apperr.New(apperr.NotFound, "message not found")
	}
	if requester != msg.Username && requester != r.registry.Admin() {
		return nil, apperr.New(apperr.Authorization, "not allowed to delete this message")
	}

	deleted, err := r.store.DeleteMessage(ctx, id, chat)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, apperr.New(apperr.NotFound, "message not found")
	}
	return ch, nil
}

// History returns the channel's messages in creation order.
func (r *Relay) History(ctx context.Context, requester, chat string) ([]models.Message, error) {
	ch, err := r.registry.Resolve(ctx, chat)
	if err != nil {
		return nil, err
	}
	if !ch.Includes(requester) {
		return nil, apperr.New(apperr.Authorization, "not allowed to read "+chat)
	}
	messages, err := r.store.GetChatMessages(ctx, chat)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// Audience resolves the channel a transient notice such as typing goes to.
// The sender must belong to it.
func (r *Relay) Audience(ctx context.Context, sender, chat string) (*channel.Channel, error) {
	ch, err := r.registry.Resolve(ctx, chat)
	if err != nil {
		return nil, err
	}
	if !ch.Includes(sender) {
		return nil, apperr.New(apperr.Authorization, "not allowed in "+chat)
	}
	return ch, nil
}
