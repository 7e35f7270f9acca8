package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/builder-auth/internal/domain"
)

// AccessRepository is the external authority on project membership. The
// OAuth engine never computes access itself.
type AccessRepository interface {
	UserHasAccessTo(ctx context.Context, userID, projectID string) (bool, error)
}

// UserDirectory resolves user identities by id.
type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (domain.User, error)
}

// FlowStateStore keeps builder-side PKCE flow state between the authorize
// redirect and the callback. Entries are single-use.
type FlowStateStore interface {
	SaveState(ctx context.Context, key string, data domain.FlowState, ttl time.Duration) error
	// TakeState loads and removes the state. A missing key yields (nil, nil).
	TakeState(ctx context.Context, key string) (*domain.FlowState, error)
}

// CodeConsumer tracks redeemed code tokens so a code cannot be exchanged
// twice within its TTL. Tracking is best-effort: entries outlive nothing
// beyond the code TTL and a restart forgets them.
type CodeConsumer interface {
	// Consume marks the token id as used and reports whether this was the
	// first use.
	Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}
