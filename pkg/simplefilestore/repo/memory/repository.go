// Package memory provides an in-memory Repository for tests and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/simple-filestore/pkg/simplefilestore"
)

// Repository implements simplefilestore.Repository using in-memory storage.
// The three uniqueness constraints are enforced under a single mutex, which
// gives the same atomic insert-time semantics as a database unique index.
type Repository struct {
	mu      sync.RWMutex
	files   map[string]*simplefilestore.FileRecord // id -> record
	byToken map[string]string                      // download token -> id
	byName  map[string]string                      // owner+filename -> id
	byHash  map[string]string                      // owner+content hash -> id
}

// New creates a new in-memory repository.
func New() *Repository {
	return &Repository{
		files:   make(map[string]*simplefilestore.FileRecord),
		byToken: make(map[string]string),
		byName:  make(map[string]string),
		byHash:  make(map[string]string),
	}
}

func nameKey(ownerID, filename string) string {
	return ownerID + "\x00" + filename
}

func hashKey(ownerID, hash string) string {
	return ownerID + "\x00" + hash
}

func (r *Repository) CreateFile(ctx context.Context, record *simplefilestore.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[nameKey(record.OwnerID, record.OriginalFilename)]; taken {
		return &simplefilestore.UniqueViolationError{
			Constraint: simplefilestore.ConstraintOwnerFilename,
			Err:        fmt.Errorf("filename %q taken", record.OriginalFilename),
		}
	}
	if _, taken := r.byHash[hashKey(record.OwnerID, record.ContentHash)]; taken {
		return &simplefilestore.UniqueViolationError{
			Constraint: simplefilestore.ConstraintOwnerContentHash,
			Err:        fmt.Errorf("content hash %s taken", record.ContentHash),
		}
	}
	if _, taken := r.byToken[record.DownloadToken]; taken {
		return &simplefilestore.UniqueViolationError{
			Constraint: simplefilestore.ConstraintDownloadToken,
			Err:        fmt.Errorf("download token taken"),
		}
	}

	copied := copyRecord(record)
	r.files[record.ID] = copied
	r.byToken[record.DownloadToken] = record.ID
	r.byName[nameKey(record.OwnerID, record.OriginalFilename)] = record.ID
	r.byHash[hashKey(record.OwnerID, record.ContentHash)] = record.ID
	return nil
}

func (r *Repository) GetFile(ctx context.Context, id string) (*simplefilestore.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.files[id]
	if !exists {
		return nil, simplefilestore.ErrFileNotFound
	}
	return copyRecord(record), nil
}

func (r *Repository) GetFileByToken(ctx context.Context, token string) (*simplefilestore.FileRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byToken[token]
	if !exists {
		return nil, simplefilestore.ErrFileNotFound
	}
	return copyRecord(r.files[id]), nil
}

func (r *Repository) QueryFiles(ctx context.Context, q simplefilestore.FileQuery) ([]*simplefilestore.FileRecord, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*simplefilestore.FileRecord
	for _, record := range r.files {
		if q.OwnerID != "" {
			if record.OwnerID != q.OwnerID {
				continue
			}
		} else if q.PublicOnly && record.Visibility != simplefilestore.VisibilityPublic {
			continue
		}
		if q.Tag != "" && !hasTag(record, q.Tag) {
			continue
		}
		matched = append(matched, copyRecord(record))
	}

	sortRecords(matched, q.SortBy, q.Descending)

	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return nil, total, nil
	}
	end := q.Offset + q.Limit
	if q.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], total, nil
}

func (r *Repository) UpdateFilename(ctx context.Context, id, filename string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.files[id]
	if !exists {
		return 0, nil
	}
	if record.OriginalFilename == filename {
		return 1, nil
	}
	if _, taken := r.byName[nameKey(record.OwnerID, filename)]; taken {
		return 0, &simplefilestore.UniqueViolationError{
			Constraint: simplefilestore.ConstraintOwnerFilename,
			Err:        fmt.Errorf("filename %q taken", filename),
		}
	}

	delete(r.byName, nameKey(record.OwnerID, record.OriginalFilename))
	record.OriginalFilename = filename
	r.byName[nameKey(record.OwnerID, filename)] = id
	return 1, nil
}

func (r *Repository) DeleteFile(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.files[id]
	if !exists {
		return simplefilestore.ErrFileNotFound
	}

	delete(r.byToken, record.DownloadToken)
	delete(r.byName, nameKey(record.OwnerID, record.OriginalFilename))
	delete(r.byHash, hashKey(record.OwnerID, record.ContentHash))
	delete(r.files, id)
	return nil
}

func (r *Repository) FilenameExists(ctx context.Context, ownerID, filename string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.byName[nameKey(ownerID, filename)]
	return exists, nil
}

func hasTag(record *simplefilestore.FileRecord, tag string) bool {
	for _, t := range record.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func sortRecords(records []*simplefilestore.FileRecord, by simplefilestore.SortField, descending bool) {
	less := func(a, b *simplefilestore.FileRecord) bool {
		switch by {
		case simplefilestore.SortByFilename:
			return a.OriginalFilename < b.OriginalFilename
		case simplefilestore.SortByContentType:
			return a.ContentType < b.ContentType
		case simplefilestore.SortBySize:
			return a.Size < b.Size
		case simplefilestore.SortByTags:
			return strings.Join(a.Tags, ",") < strings.Join(b.Tags, ",")
		default:
			return a.UploadDate.Before(b.UploadDate)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if descending {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

// copyRecord guards against external modification, tags included.
func copyRecord(record *simplefilestore.FileRecord) *simplefilestore.FileRecord {
	copied := *record
	copied.Tags = append([]string(nil), record.Tags...)
	return &copied
}
