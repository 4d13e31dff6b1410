// Package directory maps usernames and group names to their short shareable
// codes and owns the lazy generation of those codes.
package directory

import (
	"context"
	"log"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/models"
)

// MaxCodeAttempts bounds regeneration after a code collides with an existing one.
const MaxCodeAttempts = 5

type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByCode(ctx context.Context, code string) (*models.User, error)
	SetUserCode(ctx context.Context, username, code string) (bool, error)
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	GetGroupByCode(ctx context.Context, code string) (*models.Group, error)
	SetGroupCode(ctx context.Context, name, code string) (bool, error)
}

type Directory struct {
	store     Store
	userCode  Generator
	groupCode Generator
}

func New(store Store) *Directory {
	return &Directory{store: store, userCode: UserCode, groupCode: GroupCode}
}

// WithGenerators replaces the code generators. Used by tests.
func (d *Directory) WithGenerators(user, group Generator) *Directory {
	d.userCode = user
	d.groupCode = group
	return d
}

// UserCode returns the user's code, generating and persisting one on first use.
func (d *Directory) UserCode(ctx context.Context, username string) (string, error) {
	return d.ensureCode(ctx, "user "+username, d.userCode,
		func() (string, error) {
			u, err := d.store.GetUserByUsername(ctx, username)
			if err != nil {
				return "", err
			}
			return u.UserCode, nil
		},
		func(code string) (bool, error) { return d.store.SetUserCode(ctx, username, code) })
}

// GroupCode returns the group's join code, generating one on first use.
// Membership is checked by the caller.
func (d *Directory) GroupCode(ctx context.Context, group string) (string, error) {
	return d.ensureCode(ctx, "group "+group, d.groupCode,
		func() (string, error) {
			g, err := d.store.GetGroup(ctx, group)
			if err != nil {
				return "", err
			}
			return g.GroupCode, nil
		},
		func(code string) (bool, error) { return d.store.SetGroupCode(ctx, group, code) })
}

// ensureCode reads the current code and, when it is missing, tries to assign
// a new one. A lost race re-reads the winner's code; a collision with another
// owner's code regenerates. Exhausting the attempts is a transient failure.
func (d *Directory) ensureCode(ctx context.Context, what string, gen Generator, current func() (string, error), assign func(string) (bool, error)) (string, error) {
	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code, err := current()
		if err != nil {
			return "", err
		}
		if code != "" {
			return code, nil
		}

		code = gen()
		set, err := assign(code)
		switch {
		case err == nil && set:
			return code, nil
		case err == nil:
			// someone else assigned first; loop re-reads it
		case apperr.Is(err, apperr.Conflict):
			log.Printf("Code collision for %s on attempt %d", what, attempt+1)
		default:
			return "", err
		}
	}
	return "", apperr.New(apperr.Transient, "Could not generate a code, try again")
}

func (d *Directory) FindUser(ctx context.Context, code string) (*models.User, error) {
	return d.store.GetUserByCode(ctx, code)
}

func (d *Directory) FindGroup(ctx context.Context, code string) (*models.Group, error) {
	return d.store.GetGroupByCode(ctx, code)
}
