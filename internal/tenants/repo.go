package tenants

import "context"

// Repo is the tenant store collaborator.
type Repo interface {
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
	UpdateDelegatedCredential(ctx context.Context, slug, envelope string) error
}
