// Package command interprets the slash-command language typed into the
// settings channel. Each verb is an entry in a fixed table that declares its
// arity, its usage line and its handler, so every verb can be exercised on
// its own.
package command

import (
	"context"
	"log"
	"strings"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/directory"
	"github.com/Kakashki-pro/Shitgram/internal/metrics"
	"github.com/Kakashki-pro/Shitgram/internal/models"
)

// Prefix marks a settings-channel message as a command.
const Prefix = "/"

const unknownReply = "Unknown command. Try /help"

type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	RenameUser(ctx context.Context, oldName, newName string) error
	CreateGroup(ctx context.Context, name, owner string) error
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	IsMember(ctx context.Context, group, username string) (bool, error)
	AddMember(ctx context.Context, group, username string) error
	DeleteGroup(ctx context.Context, name, requester string) ([]string, error)
	AddTicket(ctx context.Context, ticket *models.Ticket, post *models.Message) error
}

// TicketNotifier is told about every filed ticket. Delivery failures are
// logged, never surfaced to the filer.
type TicketNotifier interface {
	NotifyTicket(username, text string) error
}

// Stamper builds an unsaved message with a fresh id and timestamp.
type Stamper interface {
	Stamp(author, text, chat string) *models.Message
}

type Interpreter struct {
	store    Store
	dir      *directory.Directory
	registry *channel.Registry
	stamper  Stamper
	notifier TicketNotifier
}

func NewInterpreter(store Store, dir *directory.Directory, registry *channel.Registry, stamper Stamper, notifier TicketNotifier) *Interpreter {
	return &Interpreter{
		store:    store,
		dir:      dir,
		registry: registry,
		stamper:  stamper,
		notifier: notifier,
	}
}

// IsCommand reports whether text sent to chat must be interpreted.
func IsCommand(chat, text string) bool {
	return chat == models.SettingsChat && strings.HasPrefix(text, Prefix)
}

// Execute runs one command line on behalf of user. It never fails: every
// failure becomes a reply.
func (in *Interpreter) Execute(ctx context.Context, user, line string) Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Result{Reply: unknownReply}
	}

	v, ok := verbIndex[fields[0]]
	if !ok {
		metrics.Commands.WithLabelValues("unknown", "ok").Inc()
		return Result{Verb: fields[0], Reply: unknownReply}
	}

	req := &request{user: user, args: fields[1:]}
	if v.arity == rest {
		req.rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
	}
	if !req.satisfies(v.arity) {
		metrics.Commands.WithLabelValues(v.name, apperr.Validation.String()).Inc()
		return Result{Verb: v.name, Reply: "Usage: " + v.usage, Err: apperr.New(apperr.Validation, "missing argument")}
	}

	reply, effects, err := v.run(ctx, in, req)
	metrics.Commands.WithLabelValues(v.name, metrics.Outcome(err)).Inc()
	if err != nil {
		reply = apperr.Message(err)
		effects = nil
		if apperr.Message(err) == apperr.Generic {
			log.Printf("Command %s from %s failed: %v", v.name, user, err)
		}
	}
	return Result{Verb: v.name, Reply: reply, Effects: effects, Err: err}
}

// Help lists the visible verbs in table order.
func Help() string {
	var b strings.Builder
	b.WriteString("Commands:")
	for _, v := range verbs {
		if v.hidden {
			continue
		}
		b.WriteString("\n  " + v.usage + " - " + v.help)
	}
	return b.String()
}

type arity int

const (
	none arity = iota
	one
	// rest consumes everything after the verb as one free-text argument.
	rest
)

type request struct {
	user string
	args []string
	rest string
}

func (r *request) satisfies(a arity) bool {
	switch a {
	case one:
		return len(r.args) >= 1
	case rest:
		return r.rest != ""
	}
	return true
}

func (r *request) arg() string {
	return r.args[0]
}

type handler func(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error)

type verb struct {
	name   string
	arity  arity
	usage  string
	help   string
	hidden bool
	run    handler
}

var (
	verbs     []verb
	verbIndex map[string]verb
)

// verbs is filled in init since runHelp ranges over it.
func init() {
	verbs = []verb{
		{name: "/help", arity: none, usage: "/help", help: "list commands", run: runHelp},
		{name: "/msg", arity: one, usage: "/msg <username>", help: "open DM with user", run: runMsg},
		{name: "/change_name", arity: one, usage: "/change_name <nick>", help: "change username", run: runChangeName},
		{name: "/Ucode", arity: none, usage: "/Ucode", help: "get user code", run: runUserCode},
		{name: "/finduser", arity: one, usage: "/finduser <code>", help: "find user by code", run: runFindUser},
		{name: "/create_group", arity: one, usage: "/create_group <name>", help: "create group", run: runCreateGroup},
		{name: "/Gcode", arity: one, usage: "/Gcode <group>", help: "get group code", run: runGroupCode},
		{name: "/join_group", arity: one, usage: "/join_group <code>", help: "join group", run: runJoinGroup},
		{name: "/delete_group-channel", arity: one, usage: "/delete_group-channel <name>", help: "delete group", run: runDeleteGroup},
		{name: "/ticket", arity: rest, usage: "/ticket <text>", help: "submit ticket", run: runTicket},
		{name: "/x", arity: none, usage: "/x", hidden: true, run: runEasterEgg},
	}
	verbIndex = make(map[string]verb, len(verbs))
	for _, v := range verbs {
		verbIndex[v.name] = v
	}
}
