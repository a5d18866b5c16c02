package auth

import (
	"context"
	"time"
)

// UserStore looks up sign-in identities.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) (Session, error)
	FindSession(ctx context.Context, id string) (Session, error)
	DeactivateSession(ctx context.Context, id string) error
	TouchSession(ctx context.Context, id string, at time.Time) error
}
