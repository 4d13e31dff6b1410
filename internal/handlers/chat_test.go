package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/middleware"
	"github.com/Kakashki-pro/Shitgram/internal/models"
	"github.com/Kakashki-pro/Shitgram/internal/relay"
	"github.com/Kakashki-pro/Shitgram/internal/store/sqlstore"
	"github.com/gorilla/mux"
)

var ctx = context.Background()

func newChatHandler(t *testing.T) (*ChatHandler, *sqlstore.SQLStore) {
	store, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	for _, name := range []string{"owner", "member", "outsider", "Admin01"} {
		if err := store.CreateUser(ctx, &models.User{Username: name, Password: "pass"}); err != nil {
			t.Fatal(err)
		}
	}
	registry := channel.NewRegistry(store, "Admin01")
	return &ChatHandler{Store: store, Relay: relay.New(store, registry), Admin: "Admin01"}, store
}

// as simulates AuthMiddleware having bound username's session.
func as(t *testing.T, store *sqlstore.SQLStore, req *http.Request, username string) *http.Request {
	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		t.Fatal(err)
	}
	return middleware.WithUserID(req, user.ID)
}

func TestGetChatMessages(t *testing.T) {
	handler, store := newChatHandler(t)
	store.CreateGroup(ctx, "devs", "owner")
	store.AddMember(ctx, "devs", "member")
	store.SaveMessage(ctx, &models.Message{ID: "1_a", Username: "owner", Text: "hello", Chat: "devs", CreatedAt: 1})

	req := httptest.NewRequest("GET", "/api/messages/devs", nil)
	req = mux.SetURLVars(as(t, store, req, "member"), map[string]string{"chat": "devs"})
	rr := httptest.NewRecorder()
	http.HandlerFunc(handler.GetChatMessages).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	var messages []models.Message
	json.NewDecoder(rr.Body).Decode(&messages)
	if len(messages) != 1 || messages[0].Text != "hello" {
		t.Errorf("Expected the one stored message, got %v", messages)
	}

	// Outsiders can't read the group
	req = httptest.NewRequest("GET", "/api/messages/devs", nil)
	req = mux.SetURLVars(as(t, store, req, "outsider"), map[string]string{"chat": "devs"})
	rr = httptest.NewRecorder()
	http.HandlerFunc(handler.GetChatMessages).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusForbidden {
		t.Errorf("handler returned wrong status code for outsider: got %v want %v",
			status, http.StatusForbidden)
	}
}

func TestGetChatMessagesUnknownChat(t *testing.T) {
	handler, store := newChatHandler(t)

	req := httptest.NewRequest("GET", "/api/messages/nowhere", nil)
	req = mux.SetURLVars(as(t, store, req, "member"), map[string]string{"chat": "nowhere"})
	rr := httptest.NewRecorder()
	http.HandlerFunc(handler.GetChatMessages).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusNotFound {
		t.Errorf("handler returned wrong status code: got %v want %v",
			status, http.StatusNotFound)
	}
}

func TestGetGroups(t *testing.T) {
	handler, store := newChatHandler(t)
	store.CreateGroup(ctx, "devs", "owner")
	store.CreateGroup(ctx, "ops", "outsider")
	store.AddMember(ctx, "devs", "member")

	req := as(t, store, httptest.NewRequest("GET", "/api/groups", nil), "member")
	rr := httptest.NewRecorder()
	http.HandlerFunc(handler.GetGroups).ServeHTTP(rr, req)

	var groups []groupView
	json.NewDecoder(rr.Body).Decode(&groups)
	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(groups))
	}
	if groups[0] != (groupView{Name: "devs", Owner: "owner"}) {
		t.Errorf("Unexpected group %+v", groups[0])
	}
}

func TestGetTickets(t *testing.T) {
	handler, store := newChatHandler(t)
	store.AddTicket(ctx, &models.Ticket{Username: "member", Text: "help"}, nil)

	req := as(t, store, httptest.NewRequest("GET", "/api/tickets", nil), "member")
	rr := httptest.NewRecorder()
	http.HandlerFunc(handler.GetTickets).ServeHTTP(rr, req)
	if status := rr.Code; status != http.StatusForbidden {
		t.Errorf("handler returned wrong status code for non-admin: got %v want %v",
			status, http.StatusForbidden)
	}

	req = as(t, store, httptest.NewRequest("GET", "/api/tickets", nil), "Admin01")
	rr = httptest.NewRecorder()
	http.HandlerFunc(handler.GetTickets).ServeHTTP(rr, req)

	var tickets []models.Ticket
	json.NewDecoder(rr.Body).Decode(&tickets)
	if len(tickets) != 1 || tickets[0].Text != "help" {
		t.Errorf("Expected the one ticket, got %v", tickets)
	}
}

func TestUnauthenticatedRequest(t *testing.T) {
	handler, _ := newChatHandler(t)

	rr := httptest.NewRecorder()
	http.HandlerFunc(handler.GetGroups).ServeHTTP(rr, httptest.NewRequest("GET", "/api/groups", nil))
	if status := rr.Code; status != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code: got %v want %v",
			status, http.StatusUnauthorized)
	}
}

func TestHealthz(t *testing.T) {
	handler, store := newChatHandler(t)

	rr := httptest.NewRecorder()
	http.HandlerFunc(handler.Healthz).ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %v", rr.Code)
	}

	store.Close()
	rr = httptest.NewRecorder()
	http.HandlerFunc(handler.Healthz).ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %v", rr.Code)
	}
}
