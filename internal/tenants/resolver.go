package tenants

import (
	"context"
	"fmt"

	"invoicing-backend/internal/shared/metrics"
	"invoicing-backend/internal/shared/telemetry"
)

// Resolver loads tenants by slug through a TTL cache.
type Resolver struct {
	repo  Repo
	cache *Cache
}

// NewResolver creates a tenant resolver. A nil cache disables caching.
func NewResolver(repo Repo, cache *Cache) *Resolver {
	return &Resolver{repo: repo, cache: cache}
}

// Resolve returns the tenant for slug.
func (r *Resolver) Resolve(ctx context.Context, slug string) (Tenant, error) {
	key := NormalizeSlug(slug)
	if key == "" {
		return Tenant{}, fmt.Errorf("resolve tenant: %w", ErrNotFound)
	}
	if r.cache != nil {
		if t, ok := r.cache.Get(key); ok {
			metrics.IncTenantCacheHit()
			return t, nil
		}
	}
	metrics.IncTenantCacheMiss()

	t, err := r.repo.GetBySlug(ctx, key)
	if err != nil {
		telemetry.Warn("tenant.resolve_failed", map[string]any{"tenant": key, "error": err})
		return Tenant{}, fmt.Errorf("resolve tenant %q: %w", key, err)
	}
	if r.cache != nil {
		r.cache.Set(key, t)
	}
	return t, nil
}

// Invalidate drops any cached entry for slug so the next Resolve reloads it.
func (r *Resolver) Invalidate(slug string) {
	if r.cache != nil {
		r.cache.Delete(NormalizeSlug(slug))
	}
}

// Repo exposes the underlying store for writers such as the authorization flow.
func (r *Resolver) Repo() Repo {
	return r.repo
}
