package paper

import "errors"

// Errors shared across the store, the embedding generator, the vector index
// and the coordinator. Callers match them with errors.Is.
var (
	// ErrInvalidInput indicates empty or malformed text.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidArgument indicates an out-of-range argument such as k <= 0.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// configured dimension. It signals model/index configuration drift and is
	// never retried.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrStorageFailure indicates a relational store or index file I/O error.
	ErrStorageFailure = errors.New("storage failure")

	// ErrOrphanedVector indicates an index position with no live mapping.
	ErrOrphanedVector = errors.New("orphaned vector")

	// ErrNotFound indicates a paper, chunk, mapping or summary does not exist.
	ErrNotFound = errors.New("not found")
)
