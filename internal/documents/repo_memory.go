package documents

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]Document // tenantID -> documents
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data: make(map[string][]Document),
	}
}

// Put stores or replaces a document keyed by tenant and number.
func (r *MemoryRepo) Put(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.data[doc.TenantID]
	for i := range docs {
		if docs[i].Number == doc.Number {
			docs[i] = cloneDocument(doc)
			return nil
		}
	}
	r.data[doc.TenantID] = append(docs, cloneDocument(doc))
	return nil
}

// GetByNumber returns the tenant's document with the given number.
func (r *MemoryRepo) GetByNumber(ctx context.Context, tenantID, number string) (Document, error) {
	return r.find(ctx, tenantID, func(d Document) bool { return d.Number == number })
}

// GetByID returns the tenant's document with the given ID.
func (r *MemoryRepo) GetByID(ctx context.Context, tenantID, id string) (Document, error) {
	return r.find(ctx, tenantID, func(d Document) bool { return d.ID == id })
}

func (r *MemoryRepo) find(ctx context.Context, tenantID string, match func(Document) bool) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, doc := range r.data[tenantID] {
		if match(doc) {
			return cloneDocument(doc), nil
		}
	}
	return Document{}, ErrNotFound
}

func cloneDocument(d Document) Document {
	d.Items = append([]LineItem(nil), d.Items...)
	return d
}

var _ Repo = (*MemoryRepo)(nil)
