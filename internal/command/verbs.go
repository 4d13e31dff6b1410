package command

import (
	"context"
	"fmt"
	"log"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/channel"
	"github.com/Kakashki-pro/Shitgram/internal/models"
)

// TicketPrefix marks ticket posts in the restricted channel.
const TicketPrefix = "[TICKET] "

// as replaces err with a user-facing error when it is of the given kind.
// Other failures pass through and end up as the generic reply.
func as(err error, kind apperr.Kind, reply string) error {
	if apperr.Is(err, kind) {
		return apperr.New(kind, reply)
	}
	return err
}

func runHelp(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	return Help(), nil, nil
}

func runMsg(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	target := req.arg()
	if target == req.user {
		return "", nil, apperr.New(apperr.Validation, "Can't message yourself")
	}
	if _, err := in.store.GetUserByUsername(ctx, target); err != nil {
		return "", nil, as(err, apperr.NotFound, fmt.Sprintf("User %s not found", target))
	}

	chat := channel.DirectName(req.user, target)
	return fmt.Sprintf("Opening chat with %s...", target), []Effect{
		ChatCreated{To: []string{req.user}, Chat: chat, IsDM: true, User2: target},
		ChatCreated{To: []string{target}, Chat: chat, IsDM: true, User2: req.user},
	}, nil
}

func runChangeName(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	name := req.arg()
	if !models.ValidName(name) || models.Reserved(name) {
		return "", nil, apperr.New(apperr.Validation, "Invalid username")
	}
	// The administrator's rights follow the configured name, so nobody may
	// take it and its holder may not give it up.
	if name == req.user || name == in.registry.Admin() {
		return "", nil, apperr.New(apperr.Conflict, "Username taken")
	}
	if req.user == in.registry.Admin() {
		return "", nil, apperr.New(apperr.Authorization, "The administrator can't change name")
	}
	if err := in.store.RenameUser(ctx, req.user, name); err != nil {
		return "", nil, as(err, apperr.Conflict, "Username taken")
	}
	log.Printf("User %s renamed to %s", req.user, name)
	return fmt.Sprintf("Username changed to %s", name), []Effect{Renamed{Old: req.user, New: name}}, nil
}

func runUserCode(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	code, err := in.dir.UserCode(ctx, req.user)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Your code: %s", code), nil, nil
}

func runFindUser(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	user, err := in.dir.FindUser(ctx, req.arg())
	if err != nil {
		return "", nil, as(err, apperr.NotFound, "User not found")
	}
	return fmt.Sprintf("Found: %s", user.Username), nil, nil
}

func runCreateGroup(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	name := req.arg()
	if !models.ValidName(name) || models.Reserved(name) {
		return "", nil, apperr.New(apperr.Validation, "Invalid group name")
	}
	if err := in.store.CreateGroup(ctx, name, req.user); err != nil {
		return "", nil, as(err, apperr.Conflict, "Group exists")
	}
	log.Printf("Group %s created by %s", name, req.user)
	return fmt.Sprintf("Group %s created", name), []Effect{
		ChatCreated{To: []string{req.user}, Chat: name},
	}, nil
}

func runGroupCode(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	name := req.arg()
	if _, err := in.store.GetGroup(ctx, name); err != nil {
		return "", nil, as(err, apperr.NotFound, "Group not found")
	}
	member, err := in.store.IsMember(ctx, name, req.user)
	if err != nil {
		return "", nil, err
	}
	if !member {
		return "", nil, apperr.New(apperr.Authorization, "You are not in this group")
	}
	code, err := in.dir.GroupCode(ctx, name)
	if err != nil {
		return "", nil, as(err, apperr.NotFound, "Group not found")
	}
	return fmt.Sprintf("Group code: %s", code), nil, nil
}

func runJoinGroup(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	group, err := in.dir.FindGroup(ctx, req.arg())
	if err != nil {
		return "", nil, as(err, apperr.NotFound, "Group not found")
	}
	member, err := in.store.IsMember(ctx, group.Name, req.user)
	if err != nil {
		return "", nil, err
	}
	if member {
		return "", nil, apperr.New(apperr.Conflict, "Already in group")
	}
	if err := in.store.AddMember(ctx, group.Name, req.user); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return "", nil, apperr.New(apperr.NotFound, "Group not found")
		}
		return "", nil, as(err, apperr.Conflict, "Already in group")
	}
	log.Printf("User %s joined group %s", req.user, group.Name)
	return fmt.Sprintf("Joined group %s", group.Name), []Effect{
		ChatCreated{To: []string{req.user}, Chat: group.Name},
	}, nil
}

func runDeleteGroup(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	name := req.arg()
	members, err := in.store.DeleteGroup(ctx, name, req.user)
	switch {
	case apperr.Is(err, apperr.NotFound):
		return "", nil, apperr.New(apperr.NotFound, "Group not found")
	case apperr.Is(err, apperr.Authorization):
		return "", nil, apperr.New(apperr.Authorization, "You are not owner")
	case err != nil:
		return "", nil, err
	}
	log.Printf("Group %s deleted by %s", name, req.user)
	return "Group deleted", []Effect{ChatDeleted{To: members, Chat: name}}, nil
}

func runTicket(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	post := in.stamper.Stamp(req.user, TicketPrefix+req.rest, models.TicketsChat)
	ticket := &models.Ticket{Username: req.user, Text: req.rest}
	if err := in.store.AddTicket(ctx, ticket, post); err != nil {
		return "", nil, err
	}

	if in.notifier != nil {
		go func(username, text string) {
			if err := in.notifier.NotifyTicket(username, text); err != nil {
				log.Printf("Failed to notify about ticket from %s: %v", username, err)
			}
		}(req.user, req.rest)
	}

	admin := in.registry.Admin()
	return "Ticket sent", []Effect{
		ChatCreated{To: []string{admin}, Chat: models.TicketsChat},
		MessagePosted{To: []string{admin}, Message: post},
	}, nil
}

func runEasterEgg(ctx context.Context, in *Interpreter, req *request) (string, []Effect, error) {
	return "", []Effect{EasterEgg{}}, nil
}
