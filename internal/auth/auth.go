// Package auth registers accounts, checks passwords and keeps the session
// cookie that binds a browser, and later its websocket, to one user.
package auth

import (
	"context"
	"log"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/models"
	"golang.org/x/crypto/bcrypt"
)

type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

var errInvalidCredentials = apperr.New(apperr.Authorization, "invalid credentials")

type Service struct {
	store Store
	cost  int
	admin string
}

func NewService(store Store) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// WithAdmin reserves the administrator username. Registration never hands
// it out; the account is provisioned by EnsureAdmin.
func (s *Service) WithAdmin(username string) *Service {
	s.admin = username
	return s
}

func (s *Service) Register(ctx context.Context, username, password, publicKey string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, apperr.New(apperr.Validation, "empty fields")
	}
	if !models.ValidName(username) || models.Reserved(username) {
		return nil, apperr.New(apperr.Validation, "invalid username")
	}
	if username == s.admin {
		return nil, apperr.New(apperr.Conflict, "username taken")
	}
	return s.create(ctx, username, password, publicKey)
}

// EnsureAdmin creates the administrator account with password unless it
// already exists. It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	if s.admin == "" {
		return false, apperr.New(apperr.Validation, "no administrator configured")
	}
	_, err := s.store.GetUserByUsername(ctx, s.admin)
	switch {
	case err == nil:
		return false, nil
	case !apperr.Is(err, apperr.NotFound):
		return false, err
	case password == "":
		return false, apperr.New(apperr.Validation, "administrator password not set")
	}
	if _, err := s.create(ctx, s.admin, password, ""); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) create(ctx context.Context, username, password, publicKey string) (*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		// bcrypt refuses passwords longer than 72 bytes
		return nil, apperr.Wrap(apperr.Validation, "invalid password", err)
	}

	user := &models.User{
		Username:  username,
		Password:  string(hashed),
		PublicKey: publicKey,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if apperr.Is(err, apperr.Conflict) {
			return nil, apperr.New(apperr.Conflict, "username taken")
		}
		return nil, err
	}
	log.Printf("Registered user %s", username)
	return user, nil
}

// Authenticate checks a password. Unknown users and wrong passwords fail
// the same way.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, apperr.New(apperr.Validation, "empty fields")
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return user, nil
}
