package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-dm/internal/store/sqlite"
)

const testImage = "aGVsbG8="

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig)
}

func validRegistration() Registration {
	return Registration{
		Name:     "Alice",
		LastName: "Liddell",
		Email:    "alice@example.com",
		Password: "password123",
		Image:    testImage,
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Registration)
		want   error
	}{
		{name: "blank name", mutate: func(r *Registration) { r.Name = "  " }, want: ErrInvalidName},
		{name: "bad email", mutate: func(r *Registration) { r.Email = "alice" }, want: ErrInvalidEmail},
		{name: "display name email", mutate: func(r *Registration) { r.Email = "Alice <alice@example.com>" }, want: ErrInvalidEmail},
		{name: "short password", mutate: func(r *Registration) { r.Password = "12345" }, want: ErrInvalidPassword},
		{name: "missing image", mutate: func(r *Registration) { r.Image = "" }, want: ErrInvalidImage},
		{name: "image not base64", mutate: func(r *Registration) { r.Image = "not base64!" }, want: ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := validRegistration()
			tt.mutate(&reg)
			if _, _, err := svc.Register(ctx, reg); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegister_CreatesUserAndRejectsDuplicate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	reg := validRegistration()
	reg.Email = " alice@example.com "
	token, user, err := svc.Register(ctx, reg)
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if token == "" || user.ID == "" {
		t.Fatalf("expected token and user id, got %q %+v", token, user)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID() != user.ID || claims.Name != "Alice" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// Stored email is trimmed, so the second attempt collides.
	if _, _, err := svc.Register(ctx, validRegistration()); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	_, registered, err := svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	token, user, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" || user.ID != registered.ID {
		t.Fatalf("unexpected login result: %q %+v", token, user)
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s"), Issuer: "test", Audience: "a", TTL: time.Minute}
	token, err := GenerateToken(cfg, "user-1", "Alice", "alice@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := *cfg
	other.Audience = "b"
	if _, err := ValidateToken(&other, token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}

	expired := *cfg
	expired.TTL = -time.Minute
	token, _ = GenerateToken(&expired, "user-1", "Alice", "alice@example.com")
	if _, err := ValidateToken(cfg, token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}
