package tenants

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Tenant // slug -> tenant
}

// NewMemoryRepo constructs a MemoryRepo seeded with tenants.
func NewMemoryRepo(seed ...Tenant) *MemoryRepo {
	r := &MemoryRepo{data: make(map[string]Tenant)}
	for _, t := range seed {
		r.data[NormalizeSlug(t.Slug)] = t
	}
	return r
}

// Put stores or replaces a tenant.
func (r *MemoryRepo) Put(t Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[NormalizeSlug(t.Slug)] = t
}

// GetBySlug returns the tenant for slug.
func (r *MemoryRepo) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	if err := ctx.Err(); err != nil {
		return Tenant{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.data[NormalizeSlug(slug)]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return t, nil
}

// UpdateDelegatedCredential stores a sealed credential envelope.
func (r *MemoryRepo) UpdateDelegatedCredential(ctx context.Context, slug, envelope string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := NormalizeSlug(slug)
	t, ok := r.data[key]
	if !ok {
		return ErrNotFound
	}
	t.DelegatedCredential = envelope
	r.data[key] = t
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
