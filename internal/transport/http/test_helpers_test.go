package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pairchat/pairchat-server/internal/auth"
	"github.com/pairchat/pairchat-server/internal/config"
	"github.com/pairchat/pairchat-server/internal/core"
	"github.com/pairchat/pairchat-server/internal/store"
	"github.com/pairchat/pairchat-server/internal/store/sqlite"
)

type testEnv struct {
	ts       *httptest.Server
	store    *sqlite.Store
	registry *core.Registry
	jwtCfg   *auth.JWTConfig
}

// newTestEnv boots the full server over an in-memory store. mutate may
// adjust the config before wiring.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}
	resolver := auth.NewResolver(st, jwtCfg)

	logger := zerolog.Nop()
	registry := core.NewRegistry()
	admitter := core.NewAdmitter(resolver, st)
	broadcaster := core.NewBroadcaster(registry, cfg.BroadcastQueue, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go broadcaster.Run(ctx)

	server := NewServer(&cfg, st, resolver, registry, admitter, broadcaster, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:       ts,
		store:    st,
		registry: registry,
		jwtCfg:   jwtCfg,
	}
}

func (e *testEnv) createUser(t *testing.T, username string) *store.User {
	t.Helper()

	user, err := e.store.CreateUser(context.Background(), username, username+"@example.com")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func (e *testEnv) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	token, err := auth.GenerateToken(e.jwtCfg, userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) conversation(t *testing.T, a, b uuid.UUID) *store.Conversation {
	t.Helper()

	conv, err := e.store.GetOrCreateConversation(context.Background(), a, b)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

// do issues a JSON request with a Bearer token and returns status and body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func (e *testEnv) wsURL(query string) string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws" + query
}

func decodeJSON[T any](t *testing.T, data []byte) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return out
}

func waitMembers(t *testing.T, registry *core.Registry, conversationID uuid.UUID, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(registry.Members(conversationID)) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room never reached %d members", n)
}
