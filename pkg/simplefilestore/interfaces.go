package simplefilestore

import (
	"context"
	"io"
)

// BlobStore defines the interface for binary storage backends.
type BlobStore interface {
	// Put streams the reader's content to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get returns a reader over the content stored under key, or
	// ErrBlobNotFound if the key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content stored under key. Deleting an absent key
	// is not an error.
	Delete(ctx context.Context, key string) error
}

// FileQuery describes a filtered, sorted, paginated file listing at the
// repository level. The service validates public parameters and translates
// them into this form; repositories execute it verbatim.
type FileQuery struct {
	// OwnerID scopes the query to one owner regardless of visibility.
	// When empty, PublicOnly must be set and only public records match.
	OwnerID    string
	PublicOnly bool

	// Tag, when non-empty, requires exact membership in the record's tag
	// set. It is already lower-cased by the service.
	Tag string

	SortBy     SortField
	Descending bool

	Offset int
	Limit  int
}

// Repository defines the interface for file metadata persistence.
//
// CreateFile and UpdateFilename must enforce the uniqueness constraints
// atomically and report violations as *UniqueViolationError; that atomic
// enforcement is the single source of truth under concurrent writers.
type Repository interface {
	CreateFile(ctx context.Context, record *FileRecord) error
	GetFile(ctx context.Context, id string) (*FileRecord, error)
	GetFileByToken(ctx context.Context, token string) (*FileRecord, error)

	// QueryFiles returns the matching page plus the unsliced match count.
	QueryFiles(ctx context.Context, q FileQuery) ([]*FileRecord, int64, error)

	// UpdateFilename changes a record's filename and returns the number of
	// records modified.
	UpdateFilename(ctx context.Context, id, filename string) (int64, error)

	DeleteFile(ctx context.Context, id string) error

	// FilenameExists reports whether any record for ownerID already carries
	// filename. It is an advisory fast path only; callers must not rely on
	// it for correctness under concurrency.
	FilenameExists(ctx context.Context, ownerID, filename string) (bool, error)
}
