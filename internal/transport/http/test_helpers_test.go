package http

import (
	"bytes"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/feed"
	"github.com/vovakirdan/wirechat-dm/internal/log"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/service/messages"
	"github.com/vovakirdan/wirechat-dm/internal/store/sqlite"
)

const testImage = "aGVsbG8="

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	broker := feed.NewLocal(cfg.WatchBuffer)
	t.Cleanup(func() { _ = broker.Close() })

	logger := log.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	msgs := messages.New(st, broker, cfg.MaxMessageBytes, logger)

	server := NewServer(st, msgs, authService, &cfg, logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *stdhttp.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func registerUser(t *testing.T, ts *httptest.Server, name, email string) proto.AuthResponse {
	t.Helper()

	resp := doJSON(t, ts, stdhttp.MethodPost, "/api/register", "", proto.RegisterRequest{
		Name:            name,
		LastName:        "Tester",
		Email:           email,
		Password:        "password123",
		ConfirmPassword: "password123",
		Image:           testImage,
	})
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register %s: unexpected status %d", email, resp.StatusCode)
	}
	return decode[proto.AuthResponse](t, resp)
}

func sendMessage(t *testing.T, ts *httptest.Server, token, receiverID, body string, sentAt time.Time) *stdhttp.Response {
	t.Helper()
	return doJSON(t, ts, stdhttp.MethodPost, "/api/messages", token, proto.SendMessageRequest{
		ReceiverID: receiverID,
		Body:       body,
		SentAt:     sentAt,
	})
}
