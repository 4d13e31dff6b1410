// Package channel derives channel kinds from names and decides who may
// address each channel. Nothing here is stored on its own: direct channels
// are a pure function of their two participants and group channels mirror
// the group table.
package channel

import (
	"context"
	"sort"
	"strings"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/models"
)

type Kind int

const (
	System Kind = iota + 1
	Restricted
	Direct
	Group
)

func (k Kind) String() string {
	switch k {
	case System:
		return "system"
	case Restricted:
		return "restricted-system"
	case Direct:
		return "direct"
	case Group:
		return "group"
	}
	return "unknown"
}

const separator = "-"

// DirectName returns the canonical direct channel for two users. The order
// of the arguments does not matter.
func DirectName(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, separator)
}

// Channel is a resolved channel. A nil Members slice means everyone.
type Channel struct {
	Name    string
	Kind    Kind
	Members []string
}

// Everyone reports whether the channel is addressed to all connected users.
func (c *Channel) Everyone() bool {
	return c.Kind == System
}

// Includes reports whether username belongs to the channel audience.
func (c *Channel) Includes(username string) bool {
	if c.Everyone() {
		return true
	}
	for _, m := range c.Members {
		if m == username {
			return true
		}
	}
	return false
}

// Directory is the slice of the store the registry needs.
type Directory interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	GetGroupMembers(ctx context.Context, group string) ([]string, error)
}

type Registry struct {
	dir   Directory
	admin string
}

func NewRegistry(dir Directory, admin string) *Registry {
	return &Registry{dir: dir, admin: admin}
}

func (r *Registry) Admin() string {
	return r.admin
}

// Resolve classifies name and loads its audience. Usernames and group
// names cannot contain the separator, so a name holding it can only be a
// direct channel and one without it can only be a group.
func (r *Registry) Resolve(ctx context.Context, name string) (*Channel, error) {
	switch name {
	case "":
		return nil, apperr.New(apperr.Validation, "chat is required")
	case models.SettingsChat:
		return &Channel{Name: name, Kind: System}, nil
	case models.TicketsChat:
		return &Channel{Name: name, Kind: Restricted, Members: []string{r.admin}}, nil
	}

	if strings.Contains(name, separator) {
		a, b, err := r.directParties(ctx, name)
		if err != nil {
			return nil, err
		}
		return &Channel{Name: name, Kind: Direct, Members: []string{a, b}}, nil
	}

	if _, err := r.dir.GetGroup(ctx, name); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.New(apperr.NotFound, "chat not found")
		}
		return nil, err
	}
	members, err := r.dir.GetGroupMembers(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Channel{Name: name, Kind: Group, Members: members}, nil
}

// directParties splits name into its two users. The name must be canonical
// and both users must exist.
func (r *Registry) directParties(ctx context.Context, name string) (string, string, error) {
	notFound := apperr.New(apperr.NotFound, "chat not found")
	a, b, ok := strings.Cut(name, separator)
	if !ok || !models.ValidName(a) || !models.ValidName(b) || a == b || DirectName(a, b) != name {
		return "", "", notFound
	}
	exist, err := r.bothExist(ctx, a, b)
	if err != nil {
		return "", "", err
	}
	if !exist {
		return "", "", notFound
	}
	return a, b, nil
}

func (r *Registry) bothExist(ctx context.Context, a, b string) (bool, error) {
	for _, u := range []string{a, b} {
		if _, err := r.dir.GetUserByUsername(ctx, u); err != nil {
			if apperr.Is(err, apperr.NotFound) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}
