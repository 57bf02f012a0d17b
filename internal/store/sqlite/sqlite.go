package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	last_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	image         TEXT NOT NULL DEFAULT '',
	push_token    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	sender_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	body        TEXT NOT NULL,
	sent_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, seq);
`

var (
	userColumns    = []string{"id", "name", "last_name", "email", "password_hash", "image", "push_token", "created_at"}
	messageColumns = []string{"seq", "id", "sender_id", "receiver_id", "body", "sent_at"}
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// Migrate applies the schema. It is safe to run on an existing database.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema against ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; ":memory:" requires it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db.DB); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	LastName     string    `db:"last_name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Image        string    `db:"image"`
	PushToken    string    `db:"push_token"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) toUser() *store.User {
	return &store.User{
		ID:           r.ID,
		Name:         r.Name,
		LastName:     r.LastName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Image:        r.Image,
		PushToken:    r.PushToken,
		CreatedAt:    r.CreatedAt,
	}
}

// CreateUser persists a new user and fills in ID and CreatedAt.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	id := uuid.NewString()
	createdAt := time.Now().UTC()

	query, args, err := sq.Insert("users").
		Columns(userColumns...).
		Values(id, user.Name, user.LastName, user.Email, user.PasswordHash, user.Image, user.PushToken, createdAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return store.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	user.ID = id
	user.CreatedAt = createdAt
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, sq.Eq{"id": id})
}

// GetUserByEmail retrieves a user by email, case-insensitively.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, sq.Eq{"email": email})
}

func (s *SQLiteStore) getUser(ctx context.Context, where sq.Eq) (*store.User, error) {
	query, args, err := sq.Select(userColumns...).From("users").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user: %w", err)
	}

	var row userRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return row.toUser(), nil
}

// ListUsers returns every registered user in registration order.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query, args, err := sq.Select(userColumns...).From("users").OrderBy("created_at", "rowid").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users: %w", err)
	}

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	users := make([]*store.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

// UpdatePushToken sets the user's push token. An empty token clears it.
func (s *SQLiteStore) UpdatePushToken(ctx context.Context, userID, token string) error {
	query, args, err := sq.Update("users").Set("push_token", token).Where(sq.Eq{"id": userID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update push token: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update push token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user: %w", store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

type messageRow struct {
	Seq        int64  `db:"seq"`
	ID         string `db:"id"`
	SenderID   string `db:"sender_id"`
	ReceiverID string `db:"receiver_id"`
	Body       string `db:"body"`
	SentAt     int64  `db:"sent_at"` // unix nanoseconds
}

func (r messageRow) toMessage() schema.Message {
	return schema.Message{
		ID:         r.ID,
		Seq:        r.Seq,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Body:       r.Body,
		SentAt:     time.Unix(0, r.SentAt).UTC(),
	}
}

// InsertMessage appends a message and fills in ID and Seq.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *schema.Message) error {
	id := uuid.NewString()

	query, args, err := sq.Insert("messages").
		Columns("id", "sender_id", "receiver_id", "body", "sent_at").
		Values(id, msg.SenderID, msg.ReceiverID, msg.Body, msg.SentAt.UnixNano()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert message: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	msg.Seq = seq
	return nil
}

// ListMessages returns messages matching filter with Seq greater than afterSeq.
func (s *SQLiteStore) ListMessages(ctx context.Context, filter schema.Filter, afterSeq int64) ([]schema.Message, error) {
	builder := sq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"sender_id": filter.SenderID, "receiver_id": filter.ReceiverID}).
		OrderBy("seq ASC")
	if afterSeq > 0 {
		builder = builder.Where(sq.Gt{"seq": afterSeq})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages: %w", err)
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	messages := make([]schema.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toMessage())
	}
	return messages, nil
}
