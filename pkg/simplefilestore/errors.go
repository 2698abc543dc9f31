package simplefilestore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrFileNotFound indicates no file record exists for the given id or token.
	ErrFileNotFound = errors.New("file not found")

	// ErrBlobNotFound indicates a blob store has no object for the given key.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrUnauthorized indicates a mutation attempt by a caller who does not
	// own the record. A record without an owner is treated the same way.
	ErrUnauthorized = errors.New("caller is not the file owner")
)

// InvalidArgumentError reports a request rejected before any I/O was
// performed: an empty upload, too many tags, an invalid filename, or an
// unknown sort key.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a write rejected by a uniqueness constraint. Value
// names the conflicting filename or content hash so callers can see which
// duplicate was detected.
type ConflictError struct {
	Constraint Constraint
	Value      string
}

func (e *ConflictError) Error() string {
	switch e.Constraint {
	case ConstraintOwnerFilename:
		return fmt.Sprintf("a file named %q already exists for this owner", e.Value)
	case ConstraintOwnerContentHash:
		return fmt.Sprintf("identical content already stored for this owner (hash %s)", e.Value)
	case ConstraintDownloadToken:
		return "download token collision"
	default:
		return "duplicate file"
	}
}

// StorageError reports an underlying store I/O failure, including an
// inconsistent modify result (an update that matched a row but changed none).
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage operation %s failed for %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UniqueViolationError is returned by repository implementations when an
// insert or update hits a uniqueness constraint. The service branches on the
// structured Constraint field; implementations must classify the violated
// constraint themselves rather than leak driver error text upward.
type UniqueViolationError struct {
	Constraint Constraint
	Err        error
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint %s violated: %v", e.Constraint, e.Err)
}

func (e *UniqueViolationError) Unwrap() error {
	return e.Err
}
