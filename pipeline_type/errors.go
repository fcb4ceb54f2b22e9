package pipeline_type

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedModelOutput means the language model ignored the expected schema.
	ErrMalformedModelOutput = errors.New("malformed model output")

	// ErrDuplicateIngestion is returned by a record store when the document is already marked.
	ErrDuplicateIngestion = errors.New("document already marked as indexed")

	// ErrEmptyDocument means the loaded document produced no chunks.
	ErrEmptyDocument = errors.New("document has no indexable text")

	// ErrAnswerUnavailable means a question could not be answered.
	ErrAnswerUnavailable = errors.New("answer unavailable")
)

// Sentinel replies used in place of an answer.
const (
	ReplyUnavailable  = "Sorry, an answer could not be produced for this question."
	ReplyUndetermined = "The answer could not be determined from the provided document."
)

// FetchError means a document could not be downloaded, read or parsed.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch document %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// EmbeddingError means the embedding backend failed.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider %s failed: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexError means the vector index failed.
type IndexError struct {
	Op        string
	Namespace string
	Err       error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index %s on namespace %q failed: %v", e.Op, e.Namespace, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// MalformedOutputError keeps the raw model text next to the reason it was rejected.
type MalformedOutputError struct {
	Stage  string
	Reason string
	Raw    string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Stage, ErrMalformedModelOutput, e.Reason)
}

func (e *MalformedOutputError) Unwrap() error { return ErrMalformedModelOutput }

// IsBackendError reports whether err came from the embedding provider or the vector index.
func IsBackendError(err error) bool {
	var embErr *EmbeddingError
	var idxErr *IndexError
	return errors.As(err, &embErr) || errors.As(err, &idxErr)
}
