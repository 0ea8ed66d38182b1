package retrieval

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyIndex is returned by searches before anything was ingested.
	// Callers should treat it as "no context available".
	ErrEmptyIndex  = errors.New("retrieval index is empty")
	ErrInvalidTopK = errors.New("topK must be positive")
)

// EmbeddingError reports a failed or malformed embedding call. When Op is
// "ingest" none of the Count chunks were added to the index.
type EmbeddingError struct {
	Op    string
	Count int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed during %s of %d text(s): %v", e.Op, e.Count, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
