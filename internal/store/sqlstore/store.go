package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/models"
	"github.com/Kakashki-pro/Shitgram/internal/store"
	"github.com/lib/pq" // Postgres driver
	"github.com/mattn/go-sqlite3"
)

var _ store.Store = (*SQLStore)(nil)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// Every sqlite connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx), "database")
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		public_key TEXT,
		user_code TEXT UNIQUE
	);

	CREATE TABLE IF NOT EXISTS chat_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		owner TEXT NOT NULL,
		group_code TEXT UNIQUE
	);

	CREATE TABLE IF NOT EXISTS group_members (
		group_name TEXT NOT NULL,
		username TEXT NOT NULL,
		PRIMARY KEY (group_name, username)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		username TEXT NOT NULL,
		text TEXT NOT NULL,
		chat TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS messages_chat_idx ON messages (chat, created_at);

	CREATE TABLE IF NOT EXISTS tickets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		text TEXT NOT NULL
	);
	`

	if s.driverName == "postgres" {
		// Adjust for Postgres syntax
		query = strings.ReplaceAll(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
	}

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

// classify maps driver errors onto the apperr taxonomy.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, what+" not found", err)
	}
	if isUniqueViolation(err) {
		return apperr.Wrap(apperr.Conflict, what+" already exists", err)
	}
	if apperr.KindOf(err) != apperr.Unknown {
		return err
	}
	return apperr.Wrap(apperr.Transient, what, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// withTx runs fn in a transaction and rolls back when fn fails.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	query := s.rebind("INSERT INTO users (username, password, public_key) VALUES (?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, user.Username, user.Password, user.PublicKey)
	return classify(err, "user")
}

const userColumns = "id, username, password, COALESCE(public_key, ''), COALESCE(user_code, '')"

func (s *SQLStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT " + userColumns + " FROM users WHERE " + where + " = ?")
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Username, &user.Password, &user.PublicKey, &user.UserCode)
	if err != nil {
		return nil, classify(err, "user")
	}
	return &user, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLStore) GetUserByCode(ctx context.Context, code string) (*models.User, error) {
	return s.getUser(ctx, "user_code", code)
}

func (s *SQLStore) RenameUser(ctx context.Context, oldName, newName string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, s.rebind("UPDATE users SET username = ? WHERE username = ?"), newName, oldName)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		if _, err := tx.ExecContext(ctx, s.rebind("UPDATE group_members SET username = ? WHERE username = ?"), newName, oldName); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind("UPDATE chat_groups SET owner = ? WHERE owner = ?"), newName, oldName)
		return err
	})
	return classify(err, "user")
}

// setCode performs an "assign if still null" update and reports whether a
// row changed.
func (s *SQLStore) setCode(ctx context.Context, query, code, key, what string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.rebind(query), code, key)
	if err != nil {
		return false, classify(err, what+" code")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, classify(err, what+" code")
	}
	return rows == 1, nil
}

func (s *SQLStore) SetUserCode(ctx context.Context, username, code string) (bool, error) {
	return s.setCode(ctx, "UPDATE users SET user_code = ? WHERE username = ? AND user_code IS NULL", code, username, "user")
}

func (s *SQLStore) CreateGroup(ctx context.Context, name, owner string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("INSERT INTO chat_groups (name, owner) VALUES (?, ?)"), name, owner); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.rebind("INSERT INTO group_members (group_name, username) VALUES (?, ?)"), name, owner)
		return err
	})
	return classify(err, "group")
}

const groupColumns = "id, name, owner, COALESCE(group_code, '')"

func (s *SQLStore) getGroup(ctx context.Context, where, arg string) (*models.Group, error) {
	var group models.Group
	query := s.rebind("SELECT " + groupColumns + " FROM chat_groups WHERE " + where + " = ?")
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&group.ID, &group.Name, &group.Owner, &group.GroupCode)
	if err != nil {
		return nil, classify(err, "group")
	}
	return &group, nil
}

func (s *SQLStore) GetGroup(ctx context.Context, name string) (*models.Group, error) {
	return s.getGroup(ctx, "name", name)
}

func (s *SQLStore) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	return s.getGroup(ctx, "group_code", code)
}

func (s *SQLStore) SetGroupCode(ctx context.Context, name, code string) (bool, error) {
	return s.setCode(ctx, "UPDATE chat_groups SET group_code = ? WHERE name = ? AND group_code IS NULL", code, name, "group")
}

func (s *SQLStore) IsMember(ctx context.Context, group, username string) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM group_members WHERE group_name = ? AND username = ?)")
	err := s.db.QueryRowContext(ctx, query, group, username).Scan(&exists)
	return exists, classify(err, "membership")
}

func (s *SQLStore) AddMember(ctx context.Context, group, username string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, s.rebind("SELECT EXISTS(SELECT 1 FROM chat_groups WHERE name = ?)"), group).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
		_, err := tx.ExecContext(ctx, s.rebind("INSERT INTO group_members (group_name, username) VALUES (?, ?)"), group, username)
		return err
	})
	return classify(err, "membership")
}

func (s *SQLStore) GetGroupMembers(ctx context.Context, group string) ([]string, error) {
	return queryMembers(ctx, s.db, s.rebind("SELECT username FROM group_members WHERE group_name = ? ORDER BY username"), group)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMembers(ctx context.Context, q queryer, query, group string) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, group)
	if err != nil {
		return nil, classify(err, "members")
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, classify(err, "members")
		}
		members = append(members, username)
	}
	return members, classify(rows.Err(), "members")
}

func (s *SQLStore) GetUserGroups(ctx context.Context, username string) ([]models.Group, error) {
	query := s.rebind(`
		SELECT g.id, g.name, g.owner
		FROM chat_groups g
		JOIN group_members m ON g.name = m.group_name
		WHERE m.username = ?
		ORDER BY g.name
	`)
	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, classify(err, "groups")
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Owner); err != nil {
			return nil, classify(err, "groups")
		}
		groups = append(groups, g)
	}
	return groups, classify(rows.Err(), "groups")
}

func (s *SQLStore) DeleteGroup(ctx context.Context, name, requester string) ([]string, error) {
	var members []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		if err := tx.QueryRowContext(ctx, s.rebind("SELECT owner FROM chat_groups WHERE name = ?"), name).Scan(&owner); err != nil {
			return err
		}
		if owner != requester {
			return apperr.New(apperr.Authorization, "not owner")
		}

		var err error
		members, err = queryMembers(ctx, tx, s.rebind("SELECT username FROM group_members WHERE group_name = ? ORDER BY username"), name)
		if err != nil {
			return err
		}

		// Delete history first so a later group of the same name starts empty
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM messages WHERE chat = ?"), name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM group_members WHERE group_name = ?"), name); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.rebind("DELETE FROM chat_groups WHERE name = ?"), name)
		return err
	})
	if err != nil {
		return nil, classify(err, "group")
	}
	return members, nil
}

func (s *SQLStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, s.rebind(insertMessage), msg.ID, msg.Username, msg.Text, msg.Chat, msg.CreatedAt)
	return classify(err, "message")
}

const insertMessage = "INSERT INTO messages (id, username, text, chat, created_at) VALUES (?, ?, ?, ?, ?)"

func (s *SQLStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	query := s.rebind("SELECT id, username, text, chat, created_at FROM messages WHERE id = ?")
	err := s.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Username, &m.Text, &m.Chat, &m.CreatedAt)
	if err != nil {
		return nil, classify(err, "message")
	}
	return &m, nil
}

func (s *SQLStore) DeleteMessage(ctx context.Context, id, chat string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM messages WHERE id = ? AND chat = ?"), id, chat)
	if err != nil {
		return false, classify(err, "message")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, classify(err, "message")
	}
	return rows > 0, nil
}

func (s *SQLStore) GetChatMessages(ctx context.Context, chat string) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, username, text, chat, created_at
		FROM messages
		WHERE chat = ?
		ORDER BY created_at ASC, seq ASC
	`)
	rows, err := s.db.QueryContext(ctx, query, chat)
	if err != nil {
		return nil, classify(err, "messages")
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Username, &m.Text, &m.Chat, &m.CreatedAt); err != nil {
			return nil, classify(err, "messages")
		}
		messages = append(messages, m)
	}
	return messages, classify(rows.Err(), "messages")
}

func (s *SQLStore) AddTicket(ctx context.Context, ticket *models.Ticket, post *models.Message) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("INSERT INTO tickets (username, text) VALUES (?, ?)"), ticket.Username, ticket.Text); err != nil {
			return err
		}
		if post == nil {
			return nil
		}
		_, err := tx.ExecContext(ctx, s.rebind(insertMessage), post.ID, post.Username, post.Text, post.Chat, post.CreatedAt)
		return err
	})
	return classify(err, "ticket")
}

func (s *SQLStore) GetTickets(ctx context.Context) ([]models.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, username, text FROM tickets ORDER BY id")
	if err != nil {
		return nil, classify(err, "tickets")
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.Username, &t.Text); err != nil {
			return nil, classify(err, "tickets")
		}
		tickets = append(tickets, t)
	}
	return tickets, classify(rows.Err(), "tickets")
}
