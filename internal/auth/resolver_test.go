package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pairchat/pairchat-server/internal/store"
	"github.com/pairchat/pairchat-server/internal/store/sqlite"
)

func testJWTConfig(secret string) *JWTConfig {
	return &JWTConfig{
		Secret:   []byte(secret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func newTestResolver(t *testing.T, cfg *JWTConfig) (*Resolver, *store.User) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	user, err := st.CreateUser(context.Background(), "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	return NewResolver(st, cfg), user
}

func TestResolveValidToken(t *testing.T) {
	cfg := testJWTConfig("secret")
	resolver, user := newTestResolver(t, cfg)

	token, err := GenerateToken(cfg, user.ID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	got, err := resolver.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != user.ID {
		t.Fatalf("resolved wrong user: %s != %s", got, user.ID)
	}
}

func TestResolveEmptyToken(t *testing.T) {
	resolver, _ := newTestResolver(t, testJWTConfig("secret"))

	if _, err := resolver.Resolve(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestResolveWrongSecret(t *testing.T) {
	resolver, user := newTestResolver(t, testJWTConfig("secret"))

	token, err := GenerateToken(testJWTConfig("other-secret"), user.ID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestResolveExpiredToken(t *testing.T) {
	cfg := testJWTConfig("secret")
	cfg.TTL = -time.Minute
	resolver, user := newTestResolver(t, cfg)

	token, err := GenerateToken(cfg, user.ID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestResolveUnknownUser(t *testing.T) {
	cfg := testJWTConfig("secret")
	resolver, _ := newTestResolver(t, cfg)

	token, err := GenerateToken(cfg, uuid.New())
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestResolveWrongIssuer(t *testing.T) {
	cfg := testJWTConfig("secret")
	resolver, user := newTestResolver(t, cfg)

	other := testJWTConfig("secret")
	other.Issuer = "someone-else"
	token, err := GenerateToken(other, user.ID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestResolveNonUUIDSubject(t *testing.T) {
	cfg := testJWTConfig("secret")
	resolver, _ := newTestResolver(t, cfg)

	claims := jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Issuer:    cfg.Issuer,
		Audience:  jwt.ClaimStrings{cfg.Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
