package simplefilestore

import (
	"time"
)

// Visibility is the domain type for file visibility scopes.
type Visibility string

// Visibility constants (typed).
const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility scope.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// MaxTags is the upper bound on the number of tags per file.
const MaxTags = 5

// MaxFilenameLength is the upper bound on filename length in code points.
const MaxFilenameLength = 255

// FileRecord represents one stored file: its user-facing metadata plus the
// handle of the blob holding its bytes.
//
// OriginalFilename is the only mutable field (via rename). UploadDate, Size,
// ContentHash, DownloadToken and BlobKey are fixed at creation; re-uploading
// content is a new record, never an update in place.
type FileRecord struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	OriginalFilename string     `json:"original_filename"`
	Visibility       Visibility `json:"visibility"`
	Tags             []string   `json:"tags"`
	UploadDate       time.Time  `json:"upload_date"`
	ContentType      string     `json:"content_type"`
	Size             int64      `json:"size"`
	ContentHash      string     `json:"content_hash"`
	DownloadToken    string     `json:"download_token"`
	BlobKey          string     `json:"-"`
}

// Constraint identifies which uniqueness constraint a write violated.
type Constraint string

// Constraint identities enforced by the repository.
const (
	ConstraintOwnerFilename    Constraint = "owner_filename"
	ConstraintOwnerContentHash Constraint = "owner_content_hash"
	ConstraintDownloadToken    Constraint = "download_token"
	ConstraintUnknown          Constraint = "unknown"
)

// SortField is the repository-level sort column for file queries.
type SortField string

// Sort fields accepted by Repository.QueryFiles.
const (
	SortByFilename    SortField = "original_filename"
	SortByUploadDate  SortField = "upload_date"
	SortByContentType SortField = "content_type"
	SortBySize        SortField = "size"
	SortByTags        SortField = "tags"
)
