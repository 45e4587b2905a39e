package documents

import "errors"

var (
	// ErrNotFound indicates the document does not exist for the tenant.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidInput indicates a document payload failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
