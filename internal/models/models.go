package models

import "regexp"

// Fixed channel and identity names shared by every component.
const (
	SettingsChat = "settings"
	TicketsChat  = "tickets"
	BotUsername  = "settings_bot"
)

// Names never contain "-": it joins the two usernames of a direct channel,
// so a name with it could alias someone else's conversation.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,32}$`)

// ValidName reports whether s is usable as a username or group name.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}

// Reserved reports whether s collides with a fixed channel or the bot identity.
func Reserved(s string) bool {
	switch s {
	case SettingsChat, TicketsChat, BotUsername:
		return true
	}
	return false
}

type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	PublicKey string `json:"public_key"`
	UserCode  string `json:"-"`
}

type Group struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Owner     string `json:"owner"`
	GroupCode string `json:"-"`
}

// Message is immutable once stored. Text is opaque: ciphertext for direct and
// group channels, plaintext for the system channels.
type Message struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Chat      string `json:"chat"`
	CreatedAt int64  `json:"time"`
}

type Ticket struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}
