package model

import (
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// TransientSourceError marks a source failure worth retrying: network errors,
// rate-limit signals, 5xx responses and per-attempt timeouts.
type TransientSourceError struct {
	Source     string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientSourceError) Error() string {
	return fmt.Sprintf("transient failure from %s: %v", e.Source, e.Err)
}

func (e *TransientSourceError) Unwrap() error { return e.Err }

// MalformedDataError is a single unparseable item. Payload keeps the original bytes.
type MalformedDataError struct {
	Index   int
	Payload []byte
	Err     error
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed item %d: %v", e.Index, e.Err)
}

func (e *MalformedDataError) Unwrap() error { return e.Err }

// EmbeddingGenerationError is returned once embedding retries are exhausted.
type EmbeddingGenerationError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *EmbeddingGenerationError) Error() string {
	return fmt.Sprintf("embedding with %s failed after %d attempts: %v", e.Model, e.Attempts, e.Err)
}

func (e *EmbeddingGenerationError) Unwrap() error { return e.Err }

// DuplicateConflictError reports a lost race on the same candidate signature.
type DuplicateConflictError struct {
	Signature string
	Err       error
}

func (e *DuplicateConflictError) Error() string {
	return fmt.Sprintf("duplicate conflict on signature %q: %v", e.Signature, e.Err)
}

func (e *DuplicateConflictError) Unwrap() error { return e.Err }

// StorageError is a durable-store failure. It halts the current run.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
