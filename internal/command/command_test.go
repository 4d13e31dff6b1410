package command

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/directory"
	"github.com/Kakashki-pro/Shitgram/internal/models"
	"github.com/Kakashki-pro/Shitgram/internal/relay"
	"github.com/Kakashki-pro/Shitgram/internal/store/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu      sync.Mutex
	tickets []string
	done    chan struct{}
}

func (f *fakeNotifier) NotifyTicket(username, text string) error {
	f.mu.Lock()
	f.tickets = append(f.tickets, username+": "+text)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

type fixture struct {
	store    *sqlstore.SQLStore
	in       *Interpreter
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	for _, u := range []string{"alice", "bob", "carol", "Admin01"} {
		require.NoError(t, st.CreateUser(context.Background(), &models.User{Username: u, Password: "x"}))
	}

	registry := channel.NewRegistry(st, "Admin01")
	notifier := &fakeNotifier{done: make(chan struct{}, 4)}
	in := NewInterpreter(st, directory.New(st), registry, relay.New(st, registry), notifier)
	return &fixture{store: st, in: in, notifier: notifier}
}

func (f *fixture) run(user, line string) Result {
	return f.in.Execute(context.Background(), user, line)
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand(models.SettingsChat, "/help"))
	assert.False(t, IsCommand(models.SettingsChat, "hello"))
	assert.False(t, IsCommand("devs", "/help"))
}

func TestUnknownVerb(t *testing.T) {
	f := newFixture(t)
	res := f.run("alice", "/dance now")
	assert.Equal(t, "Unknown command. Try /help", res.Reply)
	assert.Empty(t, res.Effects)
}

func TestHelpHidesEasterEgg(t *testing.T) {
	f := newFixture(t)
	res := f.run("alice", "/help")
	assert.Contains(t, res.Reply, "/msg <username>")
	assert.Contains(t, res.Reply, "/ticket <text>")
	assert.NotContains(t, res.Reply, "/x")
	assert.Equal(t, Help(), res.Reply)
	assert.Len(t, strings.Split(res.Reply, "\n"), len(verbs))
}

func TestMissingArgumentsReplyWithUsage(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"/msg":                  "Usage: /msg <username>",
		"/change_name":          "Usage: /change_name <nick>",
		"/finduser":             "Usage: /finduser <code>",
		"/create_group":         "Usage: /create_group <name>",
		"/Gcode":                "Usage: /Gcode <group>",
		"/join_group":           "Usage: /join_group <code>",
		"/delete_group-channel": "Usage: /delete_group-channel <name>",
		"/ticket   ":            "Usage: /ticket <text>",
	}
	for line, want := range cases {
		res := f.run("alice", line)
		assert.Equal(t, want, res.Reply, line)
		assert.True(t, apperr.Is(res.Err, apperr.Validation), line)
	}
}

func TestMsg(t *testing.T) {
	f := newFixture(t)

	res := f.run("bob", "/msg alice")
	require.NoError(t, res.Err)
	assert.Equal(t, "Opening chat with alice...", res.Reply)
	require.Len(t, res.Effects, 2)
	assert.Equal(t, ChatCreated{To: []string{"bob"}, Chat: "alice-bob", IsDM: true, User2: "alice"}, res.Effects[0])
	assert.Equal(t, ChatCreated{To: []string{"alice"}, Chat: "alice-bob", IsDM: true, User2: "bob"}, res.Effects[1])

	assert.Equal(t, "Can't message yourself", f.run("bob", "/msg bob").Reply)
	assert.Equal(t, "User ghost not found", f.run("bob", "/msg ghost").Reply)
}

func TestChangeName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, "Group devs created", f.run("alice", "/create_group devs").Reply)

	assert.Equal(t, "Username taken", f.run("alice", "/change_name bob").Reply)
	assert.Equal(t, "Username taken", f.run("alice", "/change_name alice").Reply)
	assert.Equal(t, "Invalid username", f.run("alice", "/change_name settings").Reply)
	assert.Equal(t, "Invalid username", f.run("alice", "/change_name a").Reply)
	assert.Equal(t, "Invalid username", f.run("alice", "/change_name bob-carol").Reply)

	res := f.run("alice", "/change_name alicia")
	require.NoError(t, res.Err)
	assert.Equal(t, "Username changed to alicia", res.Reply)
	assert.Equal(t, []Effect{Renamed{Old: "alice", New: "alicia"}}, res.Effects)

	g, err := f.store.GetGroup(ctx, "devs")
	require.NoError(t, err)
	assert.Equal(t, "alicia", g.Owner)
	members, err := f.store.GetGroupMembers(ctx, "devs")
	require.NoError(t, err)
	assert.Equal(t, []string{"alicia"}, members)
}

func TestAdminNameCannotChangeHands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, "Ticket sent", f.run("bob", "/ticket my password is hunter2").Reply)
	select {
	case <-f.notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("ticket notification not sent")
	}

	res := f.run("Admin01", "/change_name boss")
	assert.Equal(t, "The administrator can't change name", res.Reply)
	assert.True(t, apperr.Is(res.Err, apperr.Authorization))
	assert.Equal(t, "Username taken", f.run("carol", "/change_name Admin01").Reply)

	_, err := f.store.GetUserByUsername(ctx, "boss")
	assert.True(t, apperr.Is(err, apperr.NotFound))
	ch, err := f.in.registry.Resolve(ctx, models.TicketsChat)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin01"}, ch.Members)
}

func TestUserCodeAndFindUser(t *testing.T) {
	f := newFixture(t)

	first := f.run("alice", "/Ucode")
	second := f.run("alice", "/Ucode")
	require.NoError(t, first.Err)
	assert.Equal(t, first.Reply, second.Reply)

	code := strings.TrimPrefix(first.Reply, "Your code: ")
	assert.Regexp(t, regexp.MustCompile(`^[a-z]{4}[A-Z]{2}-[0-9]{4}$`), code)

	assert.Equal(t, "Found: alice", f.run("bob", "/finduser "+code).Reply)

	res := f.run("alice", "/finduser BADCODE")
	assert.Equal(t, "User not found", res.Reply)
	assert.Empty(t, res.Effects)
}

func TestGroupLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.run("alice", "/create_group devs")
	require.NoError(t, res.Err)
	assert.Equal(t, "Group devs created", res.Reply)
	assert.Equal(t, []Effect{ChatCreated{To: []string{"alice"}, Chat: "devs"}}, res.Effects)
	members, err := f.store.GetGroupMembers(ctx, "devs")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	assert.Equal(t, "You are not in this group", f.run("bob", "/Gcode devs").Reply)
	assert.Equal(t, "Group not found", f.run("alice", "/Gcode nope").Reply)

	res = f.run("alice", "/Gcode devs")
	require.NoError(t, res.Err)
	code := strings.TrimPrefix(res.Reply, "Group code: ")
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{3}[A-Z]{3}[0-9]{3}[A-Z]$`), code)
	assert.Equal(t, res.Reply, f.run("alice", "/Gcode devs").Reply)

	res = f.run("bob", "/join_group "+code)
	require.NoError(t, res.Err)
	assert.Equal(t, "Joined group devs", res.Reply)
	assert.Equal(t, []Effect{ChatCreated{To: []string{"bob"}, Chat: "devs"}}, res.Effects)
	ok, err := f.store.IsMember(ctx, "devs", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, "Already in group", f.run("bob", "/join_group "+code).Reply)
	assert.Equal(t, "Group not found", f.run("carol", "/join_group 000AAA000A").Reply)
}

func TestCreateGroupTwice(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "Group devs created", f.run("alice", "/create_group devs").Reply)

	res := f.run("bob", "/create_group devs")
	assert.Equal(t, "Group exists", res.Reply)
	assert.Empty(t, res.Effects)
	g, err := f.store.GetGroup(context.Background(), "devs")
	require.NoError(t, err)
	assert.Equal(t, "alice", g.Owner)
}

func TestCreateGroupRejectsReservedAndDirectNames(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Invalid group name", f.run("alice", "/create_group tickets").Reply)
	assert.Equal(t, "Invalid group name", f.run("alice", "/create_group alice-bob").Reply)
	assert.Equal(t, "Invalid group name", f.run("alice", "/create_group x!").Reply)
}

func TestDeleteGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.run("alice", "/create_group devs")
	code := strings.TrimPrefix(f.run("alice", "/Gcode devs").Reply, "Group code: ")
	f.run("bob", "/join_group "+code)

	res := f.run("bob", "/delete_group-channel devs")
	assert.Equal(t, "You are not owner", res.Reply)
	members, err := f.store.GetGroupMembers(ctx, "devs")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)

	res = f.run("alice", "/delete_group-channel devs")
	require.NoError(t, res.Err)
	assert.Equal(t, "Group deleted", res.Reply)
	assert.Equal(t, []Effect{ChatDeleted{To: []string{"alice", "bob"}, Chat: "devs"}}, res.Effects)

	_, err = f.store.GetGroup(ctx, "devs")
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.Equal(t, "Group not found", f.run("alice", "/delete_group-channel devs").Reply)
}

func TestTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.run("bob", "/ticket  the app   crashes ")
	require.NoError(t, res.Err)
	assert.Equal(t, "Ticket sent", res.Reply)
	require.Len(t, res.Effects, 2)
	assert.Equal(t, ChatCreated{To: []string{"Admin01"}, Chat: models.TicketsChat}, res.Effects[0])

	posted, ok := res.Effects[1].(MessagePosted)
	require.True(t, ok)
	assert.Equal(t, []string{"Admin01"}, posted.To)
	assert.Equal(t, "[TICKET] the app   crashes", posted.Message.Text)
	assert.Equal(t, "bob", posted.Message.Username)

	tickets, err := f.store.GetTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "the app   crashes", tickets[0].Text)

	history, err := f.store.GetChatMessages(ctx, models.TicketsChat)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, posted.Message.ID, history[0].ID)

	select {
	case <-f.notifier.done:
	case <-time.After(time.Second):
		t.Fatal("ticket notification was not sent")
	}
	assert.Equal(t, []string{"bob: the app   crashes"}, f.notifier.tickets)
}

func TestEasterEgg(t *testing.T) {
	f := newFixture(t)
	res := f.run("alice", "/x")
	require.NoError(t, res.Err)
	assert.Equal(t, "", res.Reply)
	assert.Equal(t, []Effect{EasterEgg{}}, res.Effects)
}

func TestStoreFailureYieldsGenericReply(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Close())

	res := f.run("alice", "/create_group devs")
	assert.Equal(t, apperr.Generic, res.Reply)
	assert.Empty(t, res.Effects)
}
