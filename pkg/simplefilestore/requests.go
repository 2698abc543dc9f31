package simplefilestore

import "io"

// Request/Response DTOs

// UploadFileRequest contains parameters for uploading a new file.
//
// Filename is the caller-chosen display name and may be blank, in which case
// OriginalFilename (the name the file was uploaded under, e.g. the multipart
// part filename) is used instead. The effective name is fixed before any
// storage I/O happens.
type UploadFileRequest struct {
	OwnerID          string
	Reader           io.Reader
	Filename         string
	OriginalFilename string
	ContentLength    int64
	Visibility       Visibility
	Tags             []string
}

// ListFilesRequest contains the public listing parameters. SortBy accepts
// the API-level keys "filename", "uploaddate", "contenttype", "size", "tag"
// and "tags"; anything else is rejected before a query is issued. An empty
// SortBy defaults to "uploaddate", an empty SortDir to ascending.
type ListFilesRequest struct {
	OwnerID string
	Tag     string
	SortBy  string
	SortDir string
	Page    int
	Size    int
}

// FilePage is one slice of a listing result. TotalElements is the unsliced
// match count.
type FilePage struct {
	Items         []*FileRecord `json:"items"`
	PageNumber    int           `json:"page_number"`
	PageSize      int           `json:"page_size"`
	TotalElements int64         `json:"total_elements"`
}

// DownloadDescriptor carries everything the transport layer needs to serve
// a blob: the content stream, the sniffed content type (already validated
// as a media type, with a binary fallback), the byte length, and the
// filename for content disposition.
type DownloadDescriptor struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	Filename    string
}
