package account

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// ErrNoSession is returned when no signed-in user is stored locally.
var ErrNoSession = errors.New("account: not signed in")

// Preferences is the signed-in user kept between runs.
type Preferences struct {
	UserID    string `yaml:"user_id"`
	Name      string `yaml:"name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
	Image     string `yaml:"image"`
	Token     string `yaml:"token"`
	PushToken string `yaml:"push_token,omitempty"`
}

func preferencesFor(user schema.User, token string) *Preferences {
	return &Preferences{
		UserID:   user.ID,
		Name:     user.Name,
		LastName: user.LastName,
		Email:    user.Email,
		Image:    user.Image,
		Token:    token,
	}
}

// User returns the stored profile.
func (p *Preferences) User() schema.User {
	return schema.User{
		ID:        p.UserID,
		Name:      p.Name,
		LastName:  p.LastName,
		Email:     p.Email,
		Image:     p.Image,
		PushToken: p.PushToken,
	}
}

// LoadPreferences reads the session file. A missing file yields ErrNoSession.
func LoadPreferences(path string) (*Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var p Preferences
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if p.UserID == "" || p.Token == "" {
		return nil, ErrNoSession
	}
	return &p, nil
}

// Save writes the session file, readable by the owner only.
func (p *Preferences) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// ClearPreferences removes the session file.
func ClearPreferences(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
