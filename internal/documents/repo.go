package documents

import (
	"context"
	"errors"
)

// Repo reads billing documents scoped to a tenant.
type Repo interface {
	GetByNumber(ctx context.Context, tenantID, number string) (Document, error)
	GetByID(ctx context.Context, tenantID, id string) (Document, error)
}

// Lookup resolves numberOrID, trying the document number first.
func Lookup(ctx context.Context, repo Repo, tenantID, numberOrID string) (Document, error) {
	doc, err := repo.GetByNumber(ctx, tenantID, numberOrID)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Document{}, err
	}
	return repo.GetByID(ctx, tenantID, numberOrID)
}
