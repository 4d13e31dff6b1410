package handlers

import (
	"log"
	"net/http"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/middleware"
	"github.com/Kakashki-pro/Shitgram/internal/models"
	"github.com/Kakashki-pro/Shitgram/internal/relay"
	"github.com/Kakashki-pro/Shitgram/internal/store"
	"github.com/gorilla/mux"
)

type ChatHandler struct {
	Store store.Store
	Relay *relay.Relay
	Admin string
}

type groupView struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// currentUser loads the account AuthMiddleware bound to the request and
// answers 401 itself when there is none.
func (h *ChatHandler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	user, err := h.Store.GetUserByID(r.Context(), userID)
	if apperr.Is(err, apperr.NotFound) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return user, true
}

func (h *ChatHandler) GetChatMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	messages, err := h.Relay.History(r.Context(), user.Username, mux.Vars(r)["chat"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *ChatHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	groups, err := h.Store.GetUserGroups(r.Context(), user.Username)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{Name: g.Name, Owner: g.Owner})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ChatHandler) GetTickets(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if user.Username != h.Admin {
		writeError(w, apperr.New(apperr.Authorization, "Forbidden"))
		return
	}

	tickets, err := h.Store.GetTickets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// Healthz reports whether the store answers.
func (h *ChatHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		log.Printf("Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
