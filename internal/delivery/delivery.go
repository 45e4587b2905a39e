// Package delivery hands out signed links to rendered artifacts, rendering and
// storing the artifact first when nothing is cached at its key.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"invoicing-backend/internal/render"
	"invoicing-backend/internal/shared/metrics"
	"invoicing-backend/internal/shared/storage/object"
	"invoicing-backend/internal/shared/telemetry"
)

// DefaultLinkTTL is the validity of issued links.
const DefaultLinkTTL = 30 * 24 * time.Hour

const contentType = "application/pdf"

// Key is the storage key of a document's artifact.
func Key(tenantSlug, documentNumber string) string {
	return tenantSlug + "/" + documentNumber + ".pdf"
}

// Regenerate renders the artifact bytes for a cache miss.
type Regenerate func(ctx context.Context) ([]byte, error)

// ArtifactUnavailableError means the artifact was not cached and could not be
// regenerated. No link is returned with it.
type ArtifactUnavailableError struct {
	Key string
	Err error
}

func (e *ArtifactUnavailableError) Error() string {
	return fmt.Sprintf("artifact %s unavailable: %v", e.Key, e.Err)
}

func (e *ArtifactUnavailableError) Unwrap() error { return e.Err }

// Link is a signed, time-limited artifact URL.
type Link struct {
	URL         string
	Key         string
	Regenerated bool
}

// Resolver implements cached-link-or-regenerate delivery.
type Resolver struct {
	store  object.ArtifactStore
	ttl    time.Duration
	flight singleflight.Group
}

// NewResolver builds a Resolver over store. A non-positive ttl uses DefaultLinkTTL.
func NewResolver(store object.ArtifactStore, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Resolver{store: store, ttl: ttl}
}

// GetLink returns a signed URL for the document's artifact. On a miss or a
// store error it runs regenerate once, stores the result at the same key and
// retries the signed URL once. Concurrent misses for one key share a single
// regeneration.
func (r *Resolver) GetLink(ctx context.Context, tenantSlug, documentNumber string, regenerate Regenerate) (Link, error) {
	key := Key(tenantSlug, documentNumber)

	url, err := r.store.SignedURL(ctx, key, r.ttl)
	if err == nil {
		return Link{URL: url, Key: key}, nil
	}
	if !errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("delivery.signed_url_failed", map[string]any{"key": key, "error": err})
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		return r.regenerate(ctx, key, regenerate)
	})
	if err != nil {
		return Link{}, err
	}
	return v.(Link), nil
}

func (r *Resolver) regenerate(ctx context.Context, key string, regenerate Regenerate) (Link, error) {
	if regenerate == nil {
		return Link{}, &ArtifactUnavailableError{Key: key, Err: errors.New("no renderer for cache miss")}
	}

	data, err := regenerate(ctx)
	if err != nil {
		return Link{}, &ArtifactUnavailableError{Key: key, Err: err}
	}
	if err := render.ValidatePDF(data); err != nil {
		return Link{}, &ArtifactUnavailableError{Key: key, Err: &render.Error{Step: render.StepValidate, Err: err}}
	}
	if _, err := r.store.Put(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return Link{}, &ArtifactUnavailableError{Key: key, Err: fmt.Errorf("store artifact: %w", err)}
	}
	metrics.IncArtifactRegenerated()

	url, err := r.store.SignedURL(ctx, key, r.ttl)
	if err != nil {
		return Link{}, &ArtifactUnavailableError{Key: key, Err: fmt.Errorf("sign after store: %w", err)}
	}
	telemetry.Info("delivery.regenerated", map[string]any{"key": key, "bytes": len(data)})
	return Link{URL: url, Key: key, Regenerated: true}, nil
}
