package store

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when a user with the same email already exists.
	ErrEmailTaken = errors.New("email already registered")
)

// User represents a registered user, including server-only fields.
type User struct {
	ID           string
	Name         string
	LastName     string
	Email        string
	PasswordHash string
	Image        string // base64 encoded profile picture
	PushToken    string
	CreatedAt    time.Time
}

// Public returns the directory view of the user.
func (u *User) Public() schema.User {
	return schema.User{
		ID:        u.ID,
		Name:      u.Name,
		LastName:  u.LastName,
		Email:     u.Email,
		Image:     u.Image,
		PushToken: u.PushToken,
		CreatedAt: u.CreatedAt,
	}
}

// UserStore handles the user directory.
type UserStore interface {
	// CreateUser persists a new user and fills in ID and CreatedAt.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsers returns every registered user in registration order.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdatePushToken sets the user's push token. An empty token clears it.
	UpdatePushToken(ctx context.Context, userID, token string) error
}

// MessageStore handles the append-only message log.
type MessageStore interface {
	// InsertMessage appends a message and fills in ID and Seq.
	InsertMessage(ctx context.Context, msg *schema.Message) error

	// ListMessages returns messages matching filter with Seq greater than afterSeq,
	// in insertion order.
	ListMessages(ctx context.Context, filter schema.Filter, afterSeq int64) ([]schema.Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
