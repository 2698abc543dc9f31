package simplefilestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-filestore/pkg/simplefilestore/blobkey"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// sortKeys maps the public API sort keys onto repository sort fields.
var sortKeys = map[string]SortField{
	"filename":    SortByFilename,
	"uploaddate":  SortByUploadDate,
	"contenttype": SortByContentType,
	"size":        SortBySize,
	"tag":         SortByTags,
	"tags":        SortByTags,
}

// service implements the Service interface.
type service struct {
	repo   Repository
	blobs  BlobStore
	keys   *blobkey.Generator
	logger *slog.Logger
}

// Option represents a functional option for configuring the service.
type Option func(*service)

// WithRepository sets the metadata repository for the service.
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repo = repo
	}
}

// WithBlobStore sets the blob storage backend for the service.
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobs = store
	}
}

// WithBlobKeys sets the blob key generator.
func WithBlobKeys(gen *blobkey.Generator) Option {
	return func(s *service) {
		s.keys = gen
	}
}

// WithLogger sets the logger used for non-fatal events such as cleanup
// failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options. A repository
// and a blob store are required; a missing collaborator is a construction
// error, not a per-request one.
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.keys == nil {
		s.keys = blobkey.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// UploadFile turns an upload stream into a durable, uniquely-keyed record,
// or rejects it with a precise conflict reason.
//
// The pre-insert filename existence check is advisory: two concurrent
// uploads with the same name can both pass it. The repository's atomic
// constraint enforcement at insert time decides the winner; the loser's
// already-written blob is deleted best effort.
func (s *service) UploadFile(ctx context.Context, req UploadFileRequest) (*FileRecord, error) {
	if req.OwnerID == "" {
		return nil, &InvalidArgumentError{Field: "owner_id", Reason: "must not be empty"}
	}
	if req.ContentLength == 0 {
		return nil, &InvalidArgumentError{Field: "file", Reason: "must not be empty"}
	}
	if req.Reader == nil {
		return nil, &InvalidArgumentError{Field: "file", Reason: "missing content stream"}
	}
	tags, err := NormalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, &InvalidArgumentError{Field: "visibility", Reason: "must be public or private"}
	}

	// The effective display name is fixed before any storage happens.
	filename := req.Filename
	if strings.TrimSpace(filename) == "" {
		filename = req.OriginalFilename
	}
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	// Advisory fast path: skip the blob write when the name is already
	// taken. A repository error here is logged and ignored; the insert
	// below is the authoritative check.
	if exists, err := s.repo.FilenameExists(ctx, req.OwnerID, filename); err != nil {
		s.logger.Warn("filename pre-check failed, continuing",
			"owner_id", req.OwnerID, "filename", filename, "error", err)
	} else if exists {
		return nil, &ConflictError{Constraint: ConstraintOwnerFilename, Value: filename}
	}

	result, err := s.ingest(ctx, s.keys.Key(req.OwnerID), req.Reader)
	if err != nil {
		return nil, err
	}

	record := &FileRecord{
		ID:               uuid.NewString(),
		OwnerID:          req.OwnerID,
		OriginalFilename: filename,
		Visibility:       visibility,
		Tags:             tags,
		UploadDate:       time.Now().UTC(),
		ContentType:      result.ContentType,
		Size:             result.Size,
		ContentHash:      result.ContentHash,
		DownloadToken:    uuid.NewString(),
		BlobKey:          result.BlobKey,
	}

	if err := s.repo.CreateFile(ctx, record); err != nil {
		s.cleanupBlob(ctx, result.BlobKey)
		if uv, ok := asUniqueViolation(err); ok {
			switch uv.Constraint {
			case ConstraintOwnerFilename:
				return nil, &ConflictError{Constraint: ConstraintOwnerFilename, Value: filename}
			case ConstraintOwnerContentHash:
				return nil, &ConflictError{Constraint: ConstraintOwnerContentHash, Value: result.ContentHash}
			default:
				return nil, &ConflictError{Constraint: ConstraintUnknown}
			}
		}
		return nil, &StorageError{Op: "insert", Key: record.ID, Err: err}
	}

	return record, nil
}

// ListFiles validates the public listing parameters against the sort-key
// allow-list and executes the query. Unknown sort keys fail before any
// repository call.
func (s *service) ListFiles(ctx context.Context, req ListFilesRequest) (*FilePage, error) {
	sortBy := SortByUploadDate
	if req.SortBy != "" {
		field, ok := sortKeys[strings.ToLower(req.SortBy)]
		if !ok {
			return nil, &InvalidArgumentError{Field: "sort_by", Reason: fmt.Sprintf("unknown sort key %q", req.SortBy)}
		}
		sortBy = field
	}

	descending := false
	switch strings.ToLower(req.SortDir) {
	case "", "asc":
	case "desc":
		descending = true
	default:
		return nil, &InvalidArgumentError{Field: "sort_dir", Reason: "must be asc or desc"}
	}

	if req.Page < 0 {
		return nil, &InvalidArgumentError{Field: "page", Reason: "must not be negative"}
	}
	size := req.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	q := FileQuery{
		OwnerID:    req.OwnerID,
		PublicOnly: req.OwnerID == "",
		Tag:        strings.ToLower(strings.TrimSpace(req.Tag)),
		SortBy:     sortBy,
		Descending: descending,
		Offset:     req.Page * size,
		Limit:      size,
	}

	items, total, err := s.repo.QueryFiles(ctx, q)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	if items == nil {
		items = []*FileRecord{}
	}

	return &FilePage{
		Items:         items,
		PageNumber:    req.Page,
		PageSize:      size,
		TotalElements: total,
	}, nil
}

// DownloadFile resolves a token to a readable descriptor. Possession of a
// valid token is the only gate; no ownership check is performed.
func (s *service) DownloadFile(ctx context.Context, token string) (*DownloadDescriptor, error) {
	record, err := s.repo.GetFileByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	body, err := s.blobs.Get(ctx, record.BlobKey)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: record.BlobKey, Err: err}
	}

	contentType := record.ContentType
	if _, _, err := mime.ParseMediaType(contentType); err != nil {
		contentType = "application/octet-stream"
	}

	return &DownloadDescriptor{
		Body:        body,
		ContentType: contentType,
		Size:        record.Size,
		Filename:    record.OriginalFilename,
	}, nil
}

// RenameFile changes a record's filename after an ownership check. Blank or
// unchanged names are a no-op; a taken name is a filename conflict.
func (s *service) RenameFile(ctx context.Context, ownerID, fileID, newFilename string) (*FileRecord, error) {
	record, err := s.repo.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(record, ownerID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(newFilename) == "" || newFilename == record.OriginalFilename {
		return record, nil
	}
	if err := ValidateFilename(newFilename); err != nil {
		return nil, err
	}

	modified, err := s.repo.UpdateFilename(ctx, fileID, newFilename)
	if err != nil {
		if uv, ok := asUniqueViolation(err); ok && uv.Constraint != ConstraintOwnerContentHash {
			return nil, &ConflictError{Constraint: ConstraintOwnerFilename, Value: newFilename}
		}
		return nil, &StorageError{Op: "rename", Key: fileID, Err: err}
	}
	if modified == 0 {
		return nil, &StorageError{Op: "rename", Key: fileID, Err: fmt.Errorf("no record modified for a requested change")}
	}

	renamed := *record
	renamed.OriginalFilename = newFilename
	return &renamed, nil
}

// DeleteFile removes the blob first and the record second. A crash between
// the two leaves dangling metadata pointing at a missing blob, which a later
// download safely rejects; the reverse order would leave an unreclaimable
// orphaned blob.
func (s *service) DeleteFile(ctx context.Context, ownerID, fileID string) error {
	record, err := s.repo.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := checkOwnership(record, ownerID); err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, record.BlobKey); err != nil {
		return &StorageError{Op: "delete", Key: record.BlobKey, Err: err}
	}
	if err := s.repo.DeleteFile(ctx, fileID); err != nil {
		return &StorageError{Op: "delete", Key: fileID, Err: err}
	}
	return nil
}

// checkOwnership gates mutations. A record without an owner is never
// authorized, for any caller.
func checkOwnership(record *FileRecord, ownerID string) error {
	if record.OwnerID == "" || record.OwnerID != ownerID {
		return ErrUnauthorized
	}
	return nil
}

// cleanupBlob deletes a blob orphaned by a failed insert. Failure here is
// logged and swallowed: a leaked blob is an acceptable failure mode, unlike
// orphaned metadata.
func (s *service) cleanupBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Error("failed to clean up orphaned blob", "blob_key", key, "error", err)
	}
}

func asUniqueViolation(err error) (*UniqueViolationError, bool) {
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		return uv, true
	}
	return nil, false
}
