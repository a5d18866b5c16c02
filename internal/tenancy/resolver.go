package tenancy

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"camguard.dev/internal/obs"
)

// Resolver maps request hosts to tenants.
type Resolver struct {
	store    Store
	cache    DetectionCache
	platform map[string]struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDetectionCache enables caching of lookups.
func WithDetectionCache(c DetectionCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithPlatformHosts lists hosts that always serve the platform itself and are
// never looked up.
func WithPlatformHosts(hosts ...string) ResolverOption {
	return func(r *Resolver) {
		for _, h := range hosts {
			if h = NormalizeHost(h); h != "" {
				r.platform[h] = struct{}{}
			}
		}
	}
}

// NewResolver builds a Resolver over store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, platform: make(map[string]struct{})}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Detect returns the tenant served on host. It never fails: a missing match
// and a failed lookup both yield the zero Detection, the latter logged as an
// error.
func (r *Resolver) Detect(ctx context.Context, host string) Detection {
	host = NormalizeHost(host)
	if host == "" {
		obs.ObserveTenantDetection("none")
		return Detection{}
	}
	if _, ok := r.platform[host]; ok {
		obs.ObserveTenantDetection("platform")
		return Detection{}
	}

	if r.cache != nil {
		d, ok, err := r.cache.Get(ctx, host)
		if err != nil {
			obs.Logger().Warn("tenant cache read failed", zap.String("host", host), zap.Error(err))
		} else if ok {
			obs.ObserveTenantDetection("cache_hit")
			return d
		}
	}

	d, err := r.lookup(ctx, host)
	switch {
	case errors.Is(err, ErrNotFound):
		obs.Logger().Debug("no tenant for host", zap.String("host", host))
		obs.ObserveTenantDetection("none")
	case err != nil:
		obs.Logger().Error("tenant detection failed", zap.String("host", host), zap.Error(err))
		obs.ObserveTenantDetection("error")
		return Detection{}
	default:
		obs.ObserveTenantDetection("match")
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, host, d); err != nil {
			obs.Logger().Warn("tenant cache write failed", zap.String("host", host), zap.Error(err))
		}
	}
	return d
}

func (r *Resolver) lookup(ctx context.Context, host string) (Detection, error) {
	dom, err := r.store.FindActiveDomainByHost(ctx, host)
	if err != nil {
		return Detection{}, err
	}
	d := Detection{TenantID: dom.TenantID, Domain: &dom}
	b, err := r.store.FindBranding(ctx, dom.TenantID)
	switch {
	case err == nil:
		d.Branding = &b
	case errors.Is(err, ErrNotFound):
	default:
		return Detection{}, err
	}
	return d, nil
}

// forget drops cached detections for hosts.
func (r *Resolver) forget(ctx context.Context, hosts ...string) {
	if r == nil || r.cache == nil {
		return
	}
	var keys []string
	for _, h := range hosts {
		if h = NormalizeHost(h); h != "" {
			keys = append(keys, h)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		obs.Logger().Warn("tenant cache invalidation failed", zap.String("hosts", strings.Join(keys, ",")), zap.Error(err))
	}
}
