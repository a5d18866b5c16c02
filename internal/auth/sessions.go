package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"camguard.dev/internal/ids"
	"camguard.dev/internal/obs"
)

const (
	defaultSessionTTL = 12 * time.Hour
	touchInterval     = time.Minute
)

// Sessions signs identities in and out and authenticates bearer tokens.
type Sessions struct {
	users    UserStore
	sessions SessionStore
	tokens   *TokenIssuer
	ttl      time.Duration
	now      func() time.Time

	mu          sync.RWMutex
	subscribers map[int]func(Change)
	nextSub     int
}

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithSessionTTL sets how long a sign-in stays valid.
func WithSessionTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) SessionsOption {
	return func(s *Sessions) {
		if fn != nil {
			s.now = fn
			s.tokens.now = fn
		}
	}
}

// NewSessions wires the session service.
func NewSessions(users UserStore, sessions SessionStore, tokens *TokenIssuer, opts ...SessionsOption) (*Sessions, error) {
	if users == nil || sessions == nil || tokens == nil {
		return nil, errors.New("auth: user store, session store and token issuer are required")
	}
	s := &Sessions{
		users:       users,
		sessions:    sessions,
		tokens:      tokens,
		ttl:         defaultSessionTTL,
		now:         time.Now,
		subscribers: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SignIn verifies the credentials, records a session and returns it with a
// signed token.
func (s *Sessions) SignIn(ctx context.Context, email, password string, meta ClientMeta) (Session, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, "", fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		checkPassword("", password)
		return Session{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, "", storeErr("find user", err)
	}
	if !checkPassword(user.PasswordHash, password) {
		return Session{}, "", ErrInvalidCredentials
	}

	now := s.now().UTC()
	session, err := s.sessions.CreateSession(ctx, Session{
		ID:           ids.New(),
		UserID:       user.ID,
		IPAddress:    strings.TrimSpace(meta.IPAddress),
		DeviceInfo:   strings.TrimSpace(meta.DeviceInfo),
		IsActive:     true,
		LastActivity: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	})
	if err != nil {
		return Session{}, "", storeErr("create session", err)
	}
	token, err := s.tokens.Issue(user.ID, user.Email, session.ID, session.ExpiresAt)
	if err != nil {
		return Session{}, "", err
	}

	obs.Logger().Info("session_started",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.ID),
	)
	s.notify(Change{Kind: SignedIn, UserID: user.ID, SessionID: session.ID})
	return session, token, nil
}

// SignOut deactivates the session. Signing out an already closed session is
// not an error.
func (s *Sessions) SignOut(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	session, err := s.sessions.FindSession(ctx, sessionID)
	if err != nil {
		return storeErr("find session", err)
	}
	if err := s.sessions.DeactivateSession(ctx, sessionID); err != nil {
		return storeErr("deactivate session", err)
	}
	obs.Logger().Info("session_ended",
		zap.String("user_id", session.UserID),
		zap.String("session_id", session.ID),
	)
	s.notify(Change{Kind: SignedOut, UserID: session.UserID, SessionID: session.ID})
	return nil
}

// Authenticate resolves a bearer token to the identity it was issued for. The
// backing session must still be active.
func (s *Sessions) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Identity{}, err
	}
	session, err := s.sessions.FindSession(ctx, claims.SessionID)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrSessionRevoked
	}
	if err != nil {
		return Identity{}, storeErr("find session", err)
	}
	now := s.now().UTC()
	if session.UserID != claims.Subject || !session.Live(now) {
		return Identity{}, ErrSessionRevoked
	}
	if now.Sub(session.LastActivity) >= touchInterval {
		if err := s.sessions.TouchSession(ctx, session.ID, now); err != nil {
			obs.Logger().Warn("session touch failed", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, SessionID: session.ID}, nil
}

// Subscribe registers fn for identity changes and returns a function that
// removes it. fn runs synchronously on the signing goroutine.
func (s *Sessions) Subscribe(fn func(Change)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Sessions) notify(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}
