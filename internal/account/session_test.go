package account

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/remote"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

var (
	alice = schema.User{ID: "u-alice", Name: "Alice", LastName: "Liddell", Email: "alice@example.com", Image: "aGVsbG8="}
	bob   = schema.User{ID: "u-bob", Name: "Bob", LastName: "Builder", Email: "bob@example.com", Image: "aGVsbG8="}
)

type fakeBackend struct {
	mu          sync.Mutex
	token       string
	registered  []proto.RegisterRequest
	pushToken   string
	users       []schema.User
	err         error
	watched     []schema.Filter
	clearCalled int
}

func (f *fakeBackend) Register(_ context.Context, req proto.RegisterRequest) (*proto.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, req)
	if f.err != nil {
		return nil, f.err
	}
	f.token = "tok-register"
	return &proto.AuthResponse{Token: f.token, User: alice}, nil
}

func (f *fakeBackend) Login(_ context.Context, email, _ string) (*proto.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.token = "tok-login"
	u := alice
	u.Email = email
	return &proto.AuthResponse{Token: f.token, User: u}, nil
}

func (f *fakeBackend) ListUsers(context.Context) ([]schema.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, f.err
}

func (f *fakeBackend) UpdatePushToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushToken = token
	return nil
}

func (f *fakeBackend) ClearPushToken(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalled++
	if f.err != nil {
		return f.err
	}
	f.pushToken = ""
	return nil
}

func (f *fakeBackend) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeBackend) Watch(_ context.Context, filter schema.Filter) (<-chan schema.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, filter)
	return make(chan schema.Batch), nil
}

func (f *fakeBackend) Insert(context.Context, schema.Message) error { return nil }

func (f *fakeBackend) currentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

type toasts struct {
	mu   sync.Mutex
	msgs []string
}

func (t *toasts) Notify(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msg)
}

func (t *toasts) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.msgs...)
}

func newTestSession(t *testing.T) (*Session, *fakeBackend, *toasts, string) {
	t.Helper()
	backend := &fakeBackend{}
	notes := &toasts{}
	path := filepath.Join(t.TempDir(), "state", "session.yaml")
	return NewSession(backend, path, notes, nil), backend, notes, path
}

func validForm() SignUpForm {
	return SignUpForm{
		Image:           "aGVsbG8=",
		Name:            "Alice",
		LastName:        "Liddell",
		Email:           "alice@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}

func TestSignUpFormValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SignUpForm)
		want   string
	}{
		{name: "no image", mutate: func(f *SignUpForm) { f.Image = "" }, want: "Please select your image"},
		{name: "no name", mutate: func(f *SignUpForm) { f.Name = " " }, want: "Please Enter your First Name"},
		{name: "no last name", mutate: func(f *SignUpForm) { f.LastName = "" }, want: "Please Enter your Last Name"},
		{name: "no email", mutate: func(f *SignUpForm) { f.Email = "" }, want: "Please Enter your Email"},
		{name: "bad email", mutate: func(f *SignUpForm) { f.Email = "alice@" }, want: "Please Enter a valid Email"},
		{name: "no password", mutate: func(f *SignUpForm) { f.Password = "" }, want: "Please Enter your Password"},
		{name: "no confirmation", mutate: func(f *SignUpForm) { f.ConfirmPassword = "" }, want: "Please Confirm Password"},
		{name: "mismatch", mutate: func(f *SignUpForm) { f.ConfirmPassword = "secret2" }, want: "Password and Confirm Password must be the same"},
		{name: "first problem wins", mutate: func(f *SignUpForm) { f.Image, f.Name = "", "" }, want: "Please select your image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.mutate(&form)

			err := form.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Message)
		})
	}

	assert.NoError(t, validForm().Validate())
}

func TestSignUpRejectsInvalidFormLocally(t *testing.T) {
	s, backend, notes, _ := newTestSession(t)

	form := validForm()
	form.ConfirmPassword = "other"
	_, err := s.SignUp(context.Background(), form)

	require.Error(t, err)
	assert.Equal(t, []string{"Password and Confirm Password must be the same"}, notes.all())
	assert.Empty(t, backend.registered)
}

func TestSignUpPersistsAndResumes(t *testing.T) {
	s, backend, notes, path := newTestSession(t)

	user, err := s.SignUp(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Empty(t, notes.all())
	require.FileExists(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	restarted := NewSession(backend, path, notes, nil)
	backend.SetToken("")
	resumed, err := restarted.Resume()
	require.NoError(t, err)
	assert.Equal(t, alice.ID, resumed.ID)
	assert.Equal(t, "tok-register", backend.currentToken())
}

func TestSignUpSurfacesServerMessage(t *testing.T) {
	s, backend, notes, _ := newTestSession(t)
	backend.err = &remote.APIError{Status: http.StatusConflict, Message: "user already exists"}

	_, err := s.SignUp(context.Background(), validForm())
	require.Error(t, err)
	assert.Equal(t, []string{"user already exists"}, notes.all())

	_, ok := s.CurrentUser()
	assert.False(t, ok)
}

func TestResumeWithoutSession(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	_, err := s.Resume()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestUpdatePushToken(t *testing.T) {
	s, backend, notes, _ := newTestSession(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdatePushToken(ctx, "device"), ErrNoSession)

	_, err := s.SignIn(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, s.UpdatePushToken(ctx, "device"))
	assert.Equal(t, "device", backend.pushToken)

	backend.err = errors.New("offline")
	require.Error(t, s.UpdatePushToken(ctx, "device-2"))

	backend.err = nil
	require.NoError(t, s.ClearPushToken(ctx))
	assert.Empty(t, backend.pushToken)

	assert.Equal(t, []string{MsgTokenFailed, MsgTokenUpdated, MsgTokenFailed, MsgTokenUpdated}, notes.all())
}

func TestSignOut(t *testing.T) {
	s, backend, notes, path := newTestSession(t)
	ctx := context.Background()

	_, err := s.SignIn(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	backend.err = errors.New("offline")
	require.Error(t, s.SignOut(ctx))
	assert.Equal(t, []string{MsgSigningOut, MsgSignOutFailed}, notes.all())
	_, ok := s.CurrentUser()
	assert.True(t, ok, "failed sign out keeps the session")
	assert.FileExists(t, path)

	backend.err = nil
	require.NoError(t, s.SignOut(ctx))
	_, ok = s.CurrentUser()
	assert.False(t, ok)
	assert.NoFileExists(t, path)
	assert.Empty(t, backend.currentToken())
	assert.Equal(t, 2, backend.clearCalled)
}

func TestContacts(t *testing.T) {
	s, backend, notes, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.SignIn(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	backend.users = []schema.User{alice, bob}
	contacts, err := s.Contacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []schema.User{bob}, contacts)
	assert.Empty(t, notes.all())

	backend.users = []schema.User{alice}
	contacts, err = s.Contacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, contacts)

	backend.err = errors.New("offline")
	_, err = s.Contacts(ctx)
	require.Error(t, err)

	assert.Equal(t, []string{MsgNoUsers, MsgNoUsers}, notes.all())
}

func TestOpenChat(t *testing.T) {
	s, backend, _, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.OpenChat(ctx, bob)
	require.ErrorIs(t, err, ErrNoSession)

	_, err = s.SignIn(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	c, err := s.OpenChat(ctx, bob)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, alice.ID, c.Local())
	assert.Equal(t, bob.ID, c.Remote())
	assert.ElementsMatch(t, []schema.Filter{
		{SenderID: alice.ID, ReceiverID: bob.ID},
		{SenderID: bob.ID, ReceiverID: alice.ID},
	}, backend.watched)
}
