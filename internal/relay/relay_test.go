package relay

import (
	"context"
	"testing"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/models"
	"github.com/Kakashki-pro/Shitgram/internal/store/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const admin = "Admin01"

func newRelay(t *testing.T) *Relay {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	for _, u := range []string{"alice", "bob", "carol", admin} {
		require.NoError(t, st.CreateUser(ctx, &models.User{Username: u, Password: "x"}))
	}
	require.NoError(t, st.CreateGroup(ctx, "devs", "alice"))
	return New(st, channel.NewRegistry(st, admin))
}

func TestSubmitThenHistory(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()
	before := time.Now().UnixMilli()

	msg, ch, err := r.Submit(ctx, "alice", "hello", "devs")
	require.NoError(t, err)
	assert.Equal(t, channel.Group, ch.Kind)
	assert.NotEmpty(t, msg.ID)

	history, err := r.History(ctx, "alice", "devs")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)
	assert.GreaterOrEqual(t, history[0].CreatedAt, before)
}

func TestSubmitRejectsEmptyFields(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()

	for _, c := range [][3]string{{"", "x", "devs"}, {"alice", "", "devs"}, {"alice", "x", ""}} {
		_, _, err := r.Submit(ctx, c[0], c[1], c[2])
		assert.True(t, apperr.Is(err, apperr.Validation), "%v", c)
	}
}

func TestRestrictedChannelIsAdminOnly(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()

	_, _, err := r.Submit(ctx, "alice", "let me in", models.TicketsChat)
	assert.True(t, apperr.Is(err, apperr.Authorization))

	history, err := r.History(ctx, admin, models.TicketsChat)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = r.History(ctx, "alice", models.TicketsChat)
	assert.True(t, apperr.Is(err, apperr.Authorization))
}

func TestDirectChannelParticipantsOnly(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()
	dm := channel.DirectName("bob", "alice")

	_, ch, err := r.Submit(ctx, "bob", "ciphertext", dm)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ch.Members)

	_, _, err = r.Submit(ctx, "carol", "sneaky", dm)
	assert.True(t, apperr.Is(err, apperr.Authorization))

	_, _, err = r.Submit(ctx, "bob", "not a member", "devs")
	assert.True(t, apperr.Is(err, apperr.Authorization))
}

func TestDelete(t *testing.T) {
	r := newRelay(t)
	ctx := context.Background()

	msg, _, err := r.Submit(ctx, "alice", "oops", models.SettingsChat)
	require.NoError(t, err)

	_, err = r.Delete(ctx, "bob", msg.ID, models.SettingsChat)
	assert.True(t, apperr.Is(err, apperr.Authorization))

	_, err = r.Delete(ctx, "alice", msg.ID, "devs")
	assert.True(t, apperr.Is(err, apperr.NotFound), "deletion is scoped to the chat")

	ch, err := r.Delete(ctx, "alice", msg.ID, models.SettingsChat)
	require.NoError(t, err)
	assert.Equal(t, channel.System, ch.Kind)

	_, err = r.Delete(ctx, "alice", msg.ID, models.SettingsChat)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	other, _, err := r.Submit(ctx, "bob", "spam", models.SettingsChat)
	require.NoError(t, err)
	_, err = r.Delete(ctx, admin, other.ID, models.SettingsChat)
	assert.NoError(t, err)
}

func TestMessageIDsAreUnique(t *testing.T) {
	at := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewMessageID(at)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
