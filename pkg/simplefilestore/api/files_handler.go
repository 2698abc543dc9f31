// Package api exposes the file storage service over HTTP. The handlers are a
// thin boundary: identity arrives as a caller-supplied owner id header
// (authentication is resolved upstream), and every domain error maps onto
// one status code.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-filestore/pkg/simplefilestore"
)

// OwnerIDHeader carries the caller identity resolved by the upstream
// authentication layer.
const OwnerIDHeader = "X-Owner-ID"

// maxFormMemory bounds the in-memory part of multipart parsing; larger
// uploads spill to disk and still reach the service as a stream.
const maxFormMemory = 32 << 20

// FilesHandler handles the file upload and management endpoints.
type FilesHandler struct {
	service simplefilestore.Service
	logger  *slog.Logger
}

// NewFilesHandler creates a handler around the given service.
func NewFilesHandler(service simplefilestore.Service, logger *slog.Logger) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesHandler{service: service, logger: logger}
}

// Routes returns the router for file endpoints.
func (h *FilesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/files", h.UploadFile)
	r.Get("/files", h.ListFiles)
	r.Patch("/files/{file_id}", h.RenameFile)
	r.Delete("/files/{file_id}", h.DeleteFile)
	r.Get("/download/{token}", h.DownloadFile)
	return r
}

// UploadFile accepts a multipart upload: the content in the "file" part,
// optional "filename", "visibility" and repeated "tags" fields.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerIDHeader)
	if ownerID == "" {
		writeError(w, r, &simplefilestore.InvalidArgumentError{Field: "owner", Reason: "missing " + OwnerIDHeader + " header"})
		return
	}

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeError(w, r, &simplefilestore.InvalidArgumentError{Field: "body", Reason: "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, &simplefilestore.InvalidArgumentError{Field: "file", Reason: "missing file part"})
		return
	}
	defer file.Close()

	req := simplefilestore.UploadFileRequest{
		OwnerID:          ownerID,
		Reader:           file,
		Filename:         r.FormValue("filename"),
		OriginalFilename: header.Filename,
		ContentLength:    partSize(file, header),
		Visibility:       simplefilestore.Visibility(strings.ToLower(r.FormValue("visibility"))),
		Tags:             r.Form["tags"],
	}

	record, err := h.service.UploadFile(r.Context(), req)
	if err != nil {
		h.logError(r, "upload failed", err)
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, record)
}

// ListFiles serves the filtered, sorted, paginated listing. Without an
// owner_id query parameter only public files are returned.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := intParam(r, "size", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req := simplefilestore.ListFilesRequest{
		OwnerID: r.URL.Query().Get("owner_id"),
		Tag:     r.URL.Query().Get("tag"),
		SortBy:  r.URL.Query().Get("sort_by"),
		SortDir: r.URL.Query().Get("sort_dir"),
		Page:    page,
		Size:    size,
	}

	result, err := h.service.ListFiles(r.Context(), req)
	if err != nil {
		h.logError(r, "list failed", err)
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// DownloadFile streams a blob to the caller. A valid token is the only
// authorization required.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	descriptor, err := h.service.DownloadFile(r.Context(), token)
	if err != nil {
		h.logError(r, "download failed", err)
		writeError(w, r, err)
		return
	}
	defer descriptor.Body.Close()

	w.Header().Set("Content-Type", descriptor.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(descriptor.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", descriptor.Filename))
	if _, err := io.Copy(w, descriptor.Body); err != nil {
		h.logError(r, "download stream interrupted", err)
	}
}

// RenameFileRequest is the rename request body.
type RenameFileRequest struct {
	Filename string `json:"filename"`
}

// RenameFile changes a file's display name.
func (h *FilesHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerIDHeader)
	fileID := chi.URLParam(r, "file_id")

	var req RenameFileRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, &simplefilestore.InvalidArgumentError{Field: "body", Reason: "invalid JSON"})
		return
	}

	record, err := h.service.RenameFile(r.Context(), ownerID, fileID, req.Filename)
	if err != nil {
		h.logError(r, "rename failed", err)
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, record)
}

// DeleteFile removes a file and its blob.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	ownerID := r.Header.Get(OwnerIDHeader)
	fileID := chi.URLParam(r, "file_id")

	if err := h.service.DeleteFile(r.Context(), ownerID, fileID); err != nil {
		h.logError(r, "delete failed", err)
		writeError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (h *FilesHandler) logError(r *http.Request, msg string, err error) {
	// Conflicts and invalid arguments are caller-visible outcomes, not
	// server faults; keep them out of the error log.
	var storageErr *simplefilestore.StorageError
	if errors.As(err, &storageErr) {
		h.logger.Error(msg, "method", r.Method, "path", r.URL.Path, "error", err)
		return
	}
	h.logger.Debug(msg, "method", r.Method, "path", r.URL.Path, "error", err)
}

// partSize reports the size of an uploaded multipart file, preferring the
// parsed header.
func partSize(file multipart.File, header *multipart.FileHeader) int64 {
	if header != nil && header.Size > 0 {
		return header.Size
	}
	if seeker, ok := file.(io.Seeker); ok {
		if size, err := seeker.Seek(0, io.SeekEnd); err == nil {
			if _, err := seeker.Seek(0, io.SeekStart); err == nil {
				return size
			}
		}
	}
	return -1
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &simplefilestore.InvalidArgumentError{Field: name, Reason: "must be an integer"}
	}
	return value, nil
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP status codes:
// invalid argument 400, unauthorized 403, not found 404, conflict 409,
// everything else 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var (
		invalidErr  *simplefilestore.InvalidArgumentError
		conflictErr *simplefilestore.ConflictError
	)
	switch {
	case errors.As(err, &invalidErr):
		status = http.StatusBadRequest
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
	case errors.Is(err, simplefilestore.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, simplefilestore.ErrFileNotFound):
		status = http.StatusNotFound
	}

	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}
