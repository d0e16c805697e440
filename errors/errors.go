package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)

// Retrieval and indexing errors.
var (
	// ErrEmbeddingUnavailable means the embedding provider is not configured or the call failed.
	// Retrieval treats it as a signal to fall back to keyword search.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStoreQueryFailed wraps a failed store query (malformed vector, aborted transaction, lost connection).
	ErrStoreQueryFailed = errors.New("store query failed")

	// ErrDimensionMismatch is returned when a vector does not match the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrRetrievalFailed is returned when every search strategy failed.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrDocumentNotFound is returned for unknown knowledge base document ids.
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)

	// ErrItemNotFound is returned for unknown fiber ids.
	ErrItemNotFound = fmt.Errorf("item %w", ErrNotFound)
)
