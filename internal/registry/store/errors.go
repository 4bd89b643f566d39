package store

import "fmt"

// NotFoundError indicates a single-entity lookup found nothing.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}

// ConflictError indicates a uniqueness invariant would be violated: duplicate
// user id or public key, duplicate chat user-set, duplicate contact pair.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// UnknownReferenceError indicates an operation names ids that do not exist.
type UnknownReferenceError struct {
	Resource string
	IDs      []int64
}

func (e *UnknownReferenceError) Error() string {
	if len(e.IDs) == 1 {
		return fmt.Sprintf("unknown %s: %d", e.Resource, e.IDs[0])
	}
	return fmt.Sprintf("unknown %ss: %v", e.Resource, e.IDs)
}

// ValidationError indicates structurally inconsistent input that made it past
// adapter-level validation, such as mismatched array lengths.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConsistencyError indicates a uniqueness invariant was nonetheless violated
// in storage (more than one row where exactly one was expected). It signals a
// bug or corrupted state and must be treated as fatal, not retried.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("storage consistency violation: %s", e.Message)
}

// StorageError indicates the underlying persistence I/O failed. Fatal; the
// core never retries. Retry policy, if any, belongs to the hosting adapter.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage fault during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
