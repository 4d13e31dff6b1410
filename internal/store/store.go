package store

import (
	"context"

	"github.com/Kakashki-pro/Shitgram/internal/models"
)

// Store is the persistence collaborator. Implementations classify failures
// with apperr: missing rows are NotFound, unique violations are Conflict and
// anything else is Transient. Every method that touches more than one row
// runs in a single transaction.
type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByCode(ctx context.Context, code string) (*models.User, error)
	// RenameUser moves the account, its memberships and its group ownerships.
	RenameUser(ctx context.Context, oldName, newName string) error
	// SetUserCode assigns code only if the user has none yet. It reports
	// whether this call performed the assignment.
	SetUserCode(ctx context.Context, username, code string) (bool, error)

	// Group operations
	// CreateGroup inserts the group and its owner's membership together.
	CreateGroup(ctx context.Context, name, owner string) error
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	GetGroupByCode(ctx context.Context, code string) (*models.Group, error)
	SetGroupCode(ctx context.Context, name, code string) (bool, error)
	IsMember(ctx context.Context, group, username string) (bool, error)
	AddMember(ctx context.Context, group, username string) error
	GetGroupMembers(ctx context.Context, group string) ([]string, error)
	GetUserGroups(ctx context.Context, username string) ([]models.Group, error)
	// DeleteGroup removes the group, its memberships and its history when
	// requester owns it, and returns the former members.
	DeleteGroup(ctx context.Context, name, requester string) ([]string, error)

	// Message operations
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id, chat string) (bool, error)
	GetChatMessages(ctx context.Context, chat string) ([]models.Message, error)

	// Ticket operations
	// AddTicket appends the ticket and, when post is non-nil, stores post in
	// the same transaction.
	AddTicket(ctx context.Context, ticket *models.Ticket, post *models.Message) error
	GetTickets(ctx context.Context) ([]models.Ticket, error)

	// Ping reports whether the database answers.
	Ping(ctx context.Context) error
	Close() error
}
