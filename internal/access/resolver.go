package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"camguard.dev/internal/obs"
)

const (
	defaultCacheTTL = 30 * time.Second
	loadTimeout     = 10 * time.Second
)

var (
	// ErrNoAssignments may be returned by stores to signal "no rows"; the
	// resolver treats it as an empty set.
	ErrNoAssignments = errors.New("access: no role assignments")
	// ErrUnavailable wraps store failures while loading assignments; the
	// request may be retried.
	ErrUnavailable = errors.New("access: role assignments temporarily unavailable")
)

// AssignmentStore fetches the role bindings of a user.
type AssignmentStore interface {
	ListAssignments(ctx context.Context, userID string) ([]Assignment, error)
}

// CacheState is the lifecycle of one user's cached assignments.
type CacheState int

const (
	StateUnloaded CacheState = iota
	StateLoading
	StateLoaded
)

func (s CacheState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

type cacheEntry struct {
	assignments Assignments
	loadedAt    time.Time
}

// Resolver answers role questions for users, caching each user's assignment
// set until it expires or is invalidated.
type Resolver struct {
	store AssignmentStore
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group

	mu          sync.Mutex
	entries     map[string]cacheEntry
	generations map[string]uint64
	inflight    map[string]int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheTTL bounds how long a loaded set is reused. Zero disables expiry.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl >= 0 {
			r.ttl = ttl
		}
	}
}

// WithResolverClock overrides the time source.
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver builds a Resolver over store.
func NewResolver(store AssignmentStore, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("access: assignment store is required")
	}
	r := &Resolver{
		store:       store,
		ttl:         defaultCacheTTL,
		now:         time.Now,
		entries:     make(map[string]cacheEntry),
		generations: make(map[string]uint64),
		inflight:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Load returns every assignment of userID. A user without assignments gets an
// empty set and no error. Store failures are returned wrapping ErrUnavailable
// and never cached. The store call is shared by concurrent callers, so it runs
// detached from any one caller's cancellation.
func (r *Resolver) Load(ctx context.Context, userID string) (Assignments, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}

	r.mu.Lock()
	if e, ok := r.entries[userID]; ok && r.fresh(e) {
		r.mu.Unlock()
		obs.ObserveRoleLoad("cache")
		return clone(e.assignments), nil
	}
	gen := r.generations[userID]
	r.inflight[userID]++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inflight[userID]--
		if r.inflight[userID] <= 0 {
			delete(r.inflight, userID)
		}
		r.mu.Unlock()
	}()

	v, err, _ := r.group.Do(userID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		rows, err := r.store.ListAssignments(loadCtx, userID)
		if errors.Is(err, ErrNoAssignments) {
			rows, err = nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		set := make(Assignments, 0, len(rows))
		for _, a := range rows {
			if a.Validate() != nil {
				obs.Logger().Warn("skipping malformed role assignment")
				continue
			}
			set = append(set, a)
		}
		return set, nil
	})
	if err != nil {
		obs.ObserveRoleLoad("error")
		return nil, err
	}
	set := v.(Assignments)
	obs.ObserveRoleLoad("store")

	r.mu.Lock()
	if r.generations[userID] == gen {
		r.entries[userID] = cacheEntry{assignments: set, loadedAt: r.now()}
	}
	r.mu.Unlock()
	return clone(set), nil
}

// Refresh drops the cached set of userID and loads it again.
func (r *Resolver) Refresh(ctx context.Context, userID string) (Assignments, error) {
	r.Invalidate(userID)
	return r.Load(ctx, userID)
}

// Invalidate forgets userID's cached set. Loads already in flight will not
// repopulate the cache.
func (r *Resolver) Invalidate(userID string) {
	userID = strings.TrimSpace(userID)
	r.mu.Lock()
	delete(r.entries, userID)
	r.generations[userID]++
	r.mu.Unlock()
	r.group.Forget(userID)
}

// Reset forgets every cached set.
func (r *Resolver) Reset() {
	r.mu.Lock()
	for id := range r.entries {
		r.generations[id]++
	}
	for id := range r.inflight {
		r.generations[id]++
		r.group.Forget(id)
	}
	r.entries = make(map[string]cacheEntry)
	r.mu.Unlock()
}

// State reports the cache lifecycle state of userID.
func (r *Resolver) State(userID string) CacheState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[userID] > 0 {
		return StateLoading
	}
	if e, ok := r.entries[userID]; ok && r.fresh(e) {
		return StateLoaded
	}
	return StateUnloaded
}

// HasRole loads userID's assignments and checks role within tenantID.
func (r *Resolver) HasRole(ctx context.Context, userID string, role Role, tenantID string) (bool, error) {
	set, err := r.Load(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasRole(role, tenantID), nil
}

// EffectiveTenant loads userID's assignments and returns their effective tenant.
func (r *Resolver) EffectiveTenant(ctx context.Context, userID string) (string, error) {
	set, err := r.Load(ctx, userID)
	if err != nil {
		return "", err
	}
	return set.EffectiveTenant(), nil
}

// PrimaryRole loads userID's assignments and returns the highest-priority role.
func (r *Resolver) PrimaryRole(ctx context.Context, userID string) (Role, bool, error) {
	set, err := r.Load(ctx, userID)
	if err != nil {
		return "", false, err
	}
	role, ok := set.PrimaryRole()
	return role, ok, nil
}

func (r *Resolver) fresh(e cacheEntry) bool {
	return r.ttl == 0 || r.now().Sub(e.loadedAt) < r.ttl
}

func clone(set Assignments) Assignments {
	if set == nil {
		return Assignments{}
	}
	out := make(Assignments, len(set))
	copy(out, set)
	return out
}
