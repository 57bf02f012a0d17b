package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidName is returned when the first name is blank.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidEmail is returned when the email is not a bare address.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidImage is returned when the profile image is missing or not base64.
	ErrInvalidImage = errors.New("invalid image")
)

// Registration is the data needed to create an account.
type Registration struct {
	Name     string
	LastName string
	Email    string
	Password string
	Image    string // base64 encoded
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, reg Registration) (string, *store.User, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Email = strings.TrimSpace(reg.Email)

	if reg.Name == "" {
		return "", nil, ErrInvalidName
	}
	if !ValidEmail(reg.Email) {
		return "", nil, ErrInvalidEmail
	}
	if len(reg.Password) < MinPasswordLength {
		return "", nil, ErrInvalidPassword
	}
	if reg.Image == "" {
		return "", nil, ErrInvalidImage
	}
	if _, err := base64.StdEncoding.DecodeString(stripNewlines(reg.Image)); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	hashedPassword, err := HashPassword(reg.Password)
	if err != nil {
		return "", nil, err
	}

	user := &store.User{
		Name:         reg.Name,
		LastName:     reg.LastName,
		Email:        reg.Email,
		PasswordHash: hashedPassword,
		Image:        reg.Image,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return "", nil, ErrUserExists
		}
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Name, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Name, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// ValidEmail reports whether s is a bare email address such as a@b.c.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

// base64 from mobile encoders is often line-wrapped.
func stripNewlines(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}
