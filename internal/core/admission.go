package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrPolicyViolation is returned when a connection attempt presents a
// missing or invalid credential, or one that does not authorize the target
// conversation. It maps to ClosePolicyViolation on the wire.
var ErrPolicyViolation = errors.New("policy violation")

// IdentityResolver validates a bearer credential and yields the stable
// user identifier it belongs to.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

// ConversationDirectory answers whether a user participates in a
// conversation.
type ConversationDirectory interface {
	IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// Admitter gates connections from Pending to Admitted with direct
// synchronous calls to the resolver and the directory. It deliberately
// bypasses HTTP middleware; a websocket upgrade is not a regular request.
type Admitter struct {
	identity  IdentityResolver
	directory ConversationDirectory
}

// NewAdmitter builds an admitter over the two collaborators.
func NewAdmitter(identity IdentityResolver, directory ConversationDirectory) *Admitter {
	return &Admitter{
		identity:  identity,
		directory: directory,
	}
}

// Admit resolves the credential and checks membership of the target
// conversation. Every failure mode collapses into ErrPolicyViolation; a
// rejected client learns only that it must retry authentication.
func (a *Admitter) Admit(ctx context.Context, token string, conversationID uuid.UUID) (uuid.UUID, error) {
	if token == "" || conversationID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: missing credential or conversation", ErrPolicyViolation)
	}

	userID, err := a.identity.Resolve(ctx, token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrPolicyViolation, err)
	}

	member, err := a.directory.IsMember(ctx, conversationID, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return uuid.Nil, fmt.Errorf("%w: not a member of conversation", ErrPolicyViolation)
	}

	return userID, nil
}
