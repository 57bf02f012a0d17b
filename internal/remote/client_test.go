package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-dm/internal/app"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/log"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

const testImage = "aGVsbG8="

// killSwitch lets a test drop every open watch stream.
type killSwitch struct {
	mu      sync.Mutex
	cancels []context.CancelFunc
	dials   int
}

func (k *killSwitch) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/watch" {
			ctx, cancel := context.WithCancel(r.Context())
			k.mu.Lock()
			k.cancels = append(k.cancels, cancel)
			k.dials++
			k.mu.Unlock()
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func (k *killSwitch) kill() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, cancel := range k.cancels {
		cancel()
	}
	k.cancels = nil
}

func (k *killSwitch) dialCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dials
}

func startServer(t *testing.T) (*httptest.Server, *killSwitch) {
	t.Helper()

	cfg := config.Default()
	cfg.DatabasePath = ":memory:"
	cfg.JWTSecret = "test-secret"

	application, err := app.New(&cfg, log.Nop())
	require.NoError(t, err)
	t.Cleanup(application.Close)

	kill := &killSwitch{}
	ts := httptest.NewServer(kill.wrap(application.Handler()))
	t.Cleanup(ts.Close)
	return ts, kill
}

func newClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	c, err := New(ts.URL, WithHTTPClient(ts.Client()), WithReconnect(10*time.Millisecond, 50*time.Millisecond))
	require.NoError(t, err)
	return c
}

func signUp(t *testing.T, c *Client, name, email string) schema.User {
	t.Helper()
	resp, err := c.Register(context.Background(), proto.RegisterRequest{
		Name:            name,
		LastName:        "Tester",
		Email:           email,
		Password:        "password123",
		ConfirmPassword: "password123",
		Image:           testImage,
	})
	require.NoError(t, err)
	require.NotEmpty(t, c.Token())
	return resp.User
}

func nextBatch(t *testing.T, ch <-chan schema.Batch) schema.Batch {
	t.Helper()
	select {
	case b, ok := <-ch:
		require.True(t, ok, "watch closed")
		return b
	case <-time.After(3 * time.Second):
		t.Fatalf("no batch")
		return schema.Batch{}
	}
}

func bodies(msgs []schema.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
}

func TestWithReconnectCeiling(t *testing.T) {
	tests := []struct {
		name            string
		delay, maxDelay time.Duration
		wantDelay       time.Duration
		wantMaxDelay    time.Duration
	}{
		{name: "defaults", wantDelay: 500 * time.Millisecond, wantMaxDelay: 15 * time.Second},
		{name: "explicit", delay: time.Second, maxDelay: time.Minute, wantDelay: time.Second, wantMaxDelay: time.Minute},
		{name: "ceiling below delay", delay: time.Minute, maxDelay: time.Second, wantDelay: time.Minute, wantMaxDelay: time.Minute},
		{name: "delay above default ceiling", delay: time.Minute, wantDelay: time.Minute, wantMaxDelay: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New("http://example.com", WithReconnect(tt.delay, tt.maxDelay))
			require.NoError(t, err)
			assert.Equal(t, tt.wantDelay, c.reconnectDelay)
			assert.Equal(t, tt.wantMaxDelay, c.maxReconnectDelay)
		})
	}
}

func TestAccountCalls(t *testing.T) {
	ts, _ := startServer(t)
	ctx := context.Background()

	alice := newClient(t, ts)
	aliceUser := signUp(t, alice, "Alice", "alice@example.com")
	bob := newClient(t, ts)
	signUp(t, bob, "Bob", "bob@example.com")

	again := newClient(t, ts)
	resp, err := again.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, aliceUser.ID, resp.User.ID)

	_, err = again.Login(ctx, "alice@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	require.NoError(t, alice.UpdatePushToken(ctx, "device-a"))
	users, err := bob.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, "device-a", users[0].PushToken)

	require.NoError(t, alice.ClearPushToken(ctx))
	users, err = bob.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users[0].PushToken)

	_, err = newClient(t, ts).Register(ctx, proto.RegisterRequest{
		Name: "Dup", LastName: "Tester", Email: "alice@example.com",
		Password: "password123", ConfirmPassword: "password123", Image: testImage,
	})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "user already exists", apiErr.Message)
}

func TestInsertAndGetAll(t *testing.T) {
	ts, _ := startServer(t)
	ctx := context.Background()

	alice := newClient(t, ts)
	a := signUp(t, alice, "Alice", "alice@example.com")
	bob := newClient(t, ts)
	b := signUp(t, bob, "Bob", "bob@example.com")

	sentAt := time.Date(2024, 2, 2, 9, 30, 0, 123_000_000, time.UTC)
	require.NoError(t, alice.Insert(ctx, schema.Message{SenderID: a.ID, ReceiverID: b.ID, Body: "hey", SentAt: sentAt}))

	msgs, err := bob.GetAll(ctx, schema.Filter{SenderID: a.ID, ReceiverID: b.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hey", msgs[0].Body)
	assert.True(t, msgs[0].SentAt.Equal(sentAt))

	_, err = bob.GetAll(ctx, schema.Filter{SenderID: a.ID})
	assert.ErrorIs(t, err, schema.ErrInvalidFilter)
}

func TestWatchSnapshotLiveAndResume(t *testing.T) {
	ts, kill := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := newClient(t, ts)
	a := signUp(t, alice, "Alice", "alice@example.com")
	bob := newClient(t, ts)
	b := signUp(t, bob, "Bob", "bob@example.com")
	toAlice := schema.Filter{SenderID: b.ID, ReceiverID: a.ID}

	require.NoError(t, bob.Insert(ctx, schema.Message{ReceiverID: a.ID, Body: "one", SentAt: time.Now()}))

	ch, err := alice.Watch(ctx, toAlice)
	require.NoError(t, err)

	snapshot := nextBatch(t, ch)
	require.NoError(t, snapshot.Err)
	assert.Equal(t, []string{"one"}, bodies(snapshot.Added()))

	require.NoError(t, bob.Insert(ctx, schema.Message{ReceiverID: a.ID, Body: "two", SentAt: time.Now()}))
	live := nextBatch(t, ch)
	assert.Equal(t, []string{"two"}, bodies(live.Added()))

	kill.kill()
	require.Error(t, nextBatch(t, ch).Err)

	require.NoError(t, bob.Insert(ctx, schema.Message{ReceiverID: a.ID, Body: "three", SentAt: time.Now()}))

	// After the reconnect only unseen records arrive.
	var seen []string
	for !assert.ObjectsAreEqual([]string{"three"}, seen) {
		b := nextBatch(t, ch)
		if b.Err != nil {
			continue
		}
		seen = append(seen, bodies(b.Added())...)
		require.NotContains(t, seen, "one")
		require.NotContains(t, seen, "two")
	}
	assert.GreaterOrEqual(t, kill.dialCount(), 2)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatchFailsFastWhenForbidden(t *testing.T) {
	ts, _ := startServer(t)
	ctx := context.Background()

	alice := newClient(t, ts)
	a := signUp(t, alice, "Alice", "alice@example.com")
	bob := newClient(t, ts)
	b := signUp(t, bob, "Bob", "bob@example.com")
	carol := newClient(t, ts)
	signUp(t, carol, "Carol", "carol@example.com")

	_, err := carol.Watch(ctx, schema.Filter{SenderID: a.ID, ReceiverID: b.ID})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	_, err = newClient(t, ts).Watch(ctx, schema.Filter{SenderID: a.ID, ReceiverID: b.ID})
	assert.True(t, errors.Is(err, ErrNotSignedIn))
}

func TestWatchDetectsSilentStream(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		// Never reads or writes, so pings go unanswered.
		<-release
	}))
	t.Cleanup(ts.Close)
	t.Cleanup(func() { close(release) })

	c, err := New(ts.URL,
		WithHTTPClient(ts.Client()),
		WithReconnect(time.Hour, time.Hour),
		WithKeepalive(20*time.Millisecond, 50*time.Millisecond),
	)
	require.NoError(t, err)
	c.SetToken("token")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.Watch(ctx, schema.Filter{SenderID: "a", ReceiverID: "b"})
	require.NoError(t, err)

	b := nextBatch(t, ch)
	require.Error(t, b.Err)
	assert.Contains(t, b.Err.Error(), "keepalive")
	assert.Empty(t, b.Added())

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}
