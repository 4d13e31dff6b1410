package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName = "chat_session"
	userIDKey   = "user_id"
	sessionAge  = 7 * 24 * 60 * 60
)

// Sessions binds a browser to a user id through a signed cookie. The id,
// not the username, is stored so a rename does not log anyone out.
type Sessions struct {
	store *sessions.CookieStore
}

func NewSessions(secret []byte, secure bool) *Sessions {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Sessions{store: store}
}

// Login starts a session for userID.
func (s *Sessions) Login(w http.ResponseWriter, r *http.Request, userID int) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values[userIDKey] = userID
	return session.Save(r, w)
}

// UserID returns the user bound to the request's session. A missing,
// expired or tampered cookie yields false.
func (s *Sessions) UserID(r *http.Request) (int, bool) {
	session, err := s.store.Get(r, sessionName)
	if err != nil {
		return 0, false
	}
	id, ok := session.Values[userIDKey].(int)
	return id, ok && id > 0
}

func (s *Sessions) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values = map[interface{}]interface{}{}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
