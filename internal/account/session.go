package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/conversation"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/remote"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

// Messages shown to the user.
const (
	MsgTokenUpdated   = "Token update successful"
	MsgTokenFailed    = "Unable to update Token"
	MsgSigningOut     = "Signing Out ..."
	MsgSignOutFailed  = "Unable to sign out"
	MsgNoUsers        = "No user available"
	MsgSignInFailed   = "Unable to sign in"
	msgUnexpectedFail = "Something went wrong"
)

// Backend is the remote side of the account path. *remote.Client implements it.
type Backend interface {
	conversation.Store

	Register(ctx context.Context, req proto.RegisterRequest) (*proto.AuthResponse, error)
	Login(ctx context.Context, email, password string) (*proto.AuthResponse, error)
	ListUsers(ctx context.Context) ([]schema.User, error)
	UpdatePushToken(ctx context.Context, token string) error
	ClearPushToken(ctx context.Context) error
	SetToken(token string)
}

// Session is the signed-in state of this device. Every remote call reports
// its own outcome to the Notifier and none of them is fatal.
type Session struct {
	backend Backend
	notify  Notifier
	path    string
	log     *zerolog.Logger

	mu    sync.Mutex
	prefs *Preferences
}

// NewSession creates a signed-out session persisted at path.
func NewSession(backend Backend, path string, notify Notifier, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if notify == nil {
		notify = LogNotifier(logger)
	}
	return &Session{
		backend: backend,
		notify:  notify,
		path:    path,
		log:     logger,
	}
}

// Resume restores the session stored on disk, if any.
func (s *Session) Resume() (schema.User, error) {
	prefs, err := LoadPreferences(s.path)
	if err != nil {
		return schema.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = prefs
	s.backend.SetToken(prefs.Token)
	return prefs.User(), nil
}

// CurrentUser returns the signed-in user.
func (s *Session) CurrentUser() (schema.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs == nil {
		return schema.User{}, false
	}
	return s.prefs.User(), true
}

// SignUp validates the form, creates the account and signs in.
func (s *Session) SignUp(ctx context.Context, form SignUpForm) (schema.User, error) {
	if err := form.Validate(); err != nil {
		s.notify.Notify(err.Error())
		return schema.User{}, err
	}

	resp, err := s.backend.Register(ctx, form.request())
	if err != nil {
		s.notify.Notify(failureMessage(err, msgUnexpectedFail))
		return schema.User{}, fmt.Errorf("register: %w", err)
	}

	if err := s.store(resp); err != nil {
		return schema.User{}, err
	}
	return resp.User, nil
}

// SignIn signs in with email and password.
func (s *Session) SignIn(ctx context.Context, email, password string) (schema.User, error) {
	resp, err := s.backend.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		s.notify.Notify(failureMessage(err, MsgSignInFailed))
		return schema.User{}, fmt.Errorf("login: %w", err)
	}

	if err := s.store(resp); err != nil {
		return schema.User{}, err
	}
	return resp.User, nil
}

func (s *Session) store(resp *proto.AuthResponse) error {
	prefs := preferencesFor(resp.User, resp.Token)
	if err := prefs.Save(s.path); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("failed to persist session")
		s.notify.Notify(msgUnexpectedFail)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = prefs
	return nil
}

// UpdatePushToken registers this device's push token for the signed-in user.
func (s *Session) UpdatePushToken(ctx context.Context, token string) error {
	if _, ok := s.CurrentUser(); !ok {
		s.notify.Notify(MsgTokenFailed)
		return ErrNoSession
	}

	if err := s.backend.UpdatePushToken(ctx, token); err != nil {
		s.notify.Notify(MsgTokenFailed)
		return fmt.Errorf("update push token: %w", err)
	}

	s.rememberPushToken(token)
	s.notify.Notify(MsgTokenUpdated)
	return nil
}

// ClearPushToken stops push delivery to this device without signing out.
func (s *Session) ClearPushToken(ctx context.Context) error {
	if _, ok := s.CurrentUser(); !ok {
		s.notify.Notify(MsgTokenFailed)
		return ErrNoSession
	}

	if err := s.backend.ClearPushToken(ctx); err != nil {
		s.notify.Notify(MsgTokenFailed)
		return fmt.Errorf("clear push token: %w", err)
	}
	s.rememberPushToken("")
	s.notify.Notify(MsgTokenUpdated)
	return nil
}

func (s *Session) rememberPushToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs == nil {
		return
	}
	s.prefs.PushToken = token
	if err := s.prefs.Save(s.path); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist push token")
	}
}

// SignOut deletes the push token remotely, then forgets the local session.
// When the remote call fails the session is kept.
func (s *Session) SignOut(ctx context.Context) error {
	if _, ok := s.CurrentUser(); !ok {
		return ErrNoSession
	}

	s.notify.Notify(MsgSigningOut)
	if err := s.backend.ClearPushToken(ctx); err != nil {
		s.notify.Notify(MsgSignOutFailed)
		return fmt.Errorf("clear push token: %w", err)
	}

	if err := ClearPreferences(s.path); err != nil {
		s.notify.Notify(MsgSignOutFailed)
		return err
	}

	s.mu.Lock()
	s.prefs = nil
	s.mu.Unlock()
	s.backend.SetToken("")
	return nil
}

// Contacts lists every other user, fetched fresh on each call.
func (s *Session) Contacts(ctx context.Context) ([]schema.User, error) {
	me, ok := s.CurrentUser()
	if !ok {
		s.notify.Notify(MsgNoUsers)
		return nil, ErrNoSession
	}

	users, err := s.backend.ListUsers(ctx)
	if err != nil {
		s.notify.Notify(MsgNoUsers)
		return nil, fmt.Errorf("list users: %w", err)
	}

	contacts := make([]schema.User, 0, len(users))
	for _, u := range users {
		if u.ID != me.ID {
			contacts = append(contacts, u)
		}
	}
	if len(contacts) == 0 {
		s.notify.Notify(MsgNoUsers)
	}
	return contacts, nil
}

// OpenChat opens the conversation between the signed-in user and peer.
func (s *Session) OpenChat(ctx context.Context, peer schema.User, opts ...conversation.Option) (*conversation.Conversation, error) {
	me, ok := s.CurrentUser()
	if !ok {
		return nil, ErrNoSession
	}
	opts = append([]conversation.Option{conversation.WithLogger(s.log)}, opts...)
	return conversation.Open(ctx, s.backend, me.ID, peer.ID, opts...)
}

func failureMessage(err error, fallback string) string {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
