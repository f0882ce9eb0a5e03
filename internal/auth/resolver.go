package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat-server/internal/store"
)

// ErrUnauthorized is returned when a credential does not resolve to a user.
var ErrUnauthorized = errors.New("unauthorized")

// Resolver validates bearer tokens and maps them to user identities.
// It is the single authority both HTTP middleware and websocket admission
// consult; neither re-implements token parsing.
type Resolver struct {
	users     store.UserStore
	jwtConfig *JWTConfig
}

// NewResolver creates a resolver backed by the given user directory.
func NewResolver(users store.UserStore, jwtConfig *JWTConfig) *Resolver {
	return &Resolver{
		users:     users,
		jwtConfig: jwtConfig,
	}
}

// Resolve validates the token and confirms the subject exists in the user
// directory. Any failure is reported as ErrUnauthorized; callers only need
// to know the credential did not hold.
func (r *Resolver) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrUnauthorized
	}

	claims, err := ValidateToken(r.jwtConfig, token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	userID, err := claims.UserID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if _, err := r.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, ErrUnauthorized
		}
		return uuid.Nil, fmt.Errorf("resolve user: %w", err)
	}

	return userID, nil
}
