package object

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no object exists at a key.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for empty, absolute or traversing keys.
	ErrInvalidKey = errors.New("invalid storage key")
)

// ArtifactStore saves rendered artifacts at caller-chosen keys and hands out
// time-limited download links for them.
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// SignedURL returns ErrNotFound when nothing is stored at key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// CleanKey normalizes a slash-separated key and rejects traversal.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || strings.Contains(trimmed, "\\") {
		return "", ErrInvalidKey
	}
	clean := path.Clean("/" + trimmed)[1:]
	if clean == "" || clean != strings.TrimPrefix(trimmed, "/") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." || part == "." {
			return "", ErrInvalidKey
		}
	}
	return clean, nil
}
