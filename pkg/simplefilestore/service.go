package simplefilestore

import (
	"context"
)

// Service defines the main interface for the simple-filestore library.
//
// Every method takes the caller's owner id (or download token) as plain
// input; authentication is resolved upstream. All methods are safe for
// concurrent use: correctness under concurrent writers comes from the
// repository's atomic constraint enforcement, not from in-process locking.
type Service interface {
	// UploadFile ingests a new file: sniffs its content type, streams it
	// into the blob store while hashing, and inserts a uniquely-keyed
	// record. Duplicate filename or content for the same owner is a
	// *ConflictError; the orphaned blob is cleaned up best effort.
	UploadFile(ctx context.Context, req UploadFileRequest) (*FileRecord, error)

	// ListFiles returns a filtered, sorted page of records. With no owner
	// the listing is restricted to public files.
	ListFiles(ctx context.Context, req ListFilesRequest) (*FilePage, error)

	// DownloadFile resolves a download token to a readable descriptor.
	// Possession of a valid token is the only authorization required.
	DownloadFile(ctx context.Context, token string) (*DownloadDescriptor, error)

	// RenameFile changes a record's filename. Renaming to a blank or
	// unchanged name is a no-op returning the current record.
	RenameFile(ctx context.Context, ownerID, fileID, newFilename string) (*FileRecord, error)

	// DeleteFile removes the blob and then the record.
	DeleteFile(ctx context.Context, ownerID, fileID string) error
}
