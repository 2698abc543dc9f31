package simplefilestore_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-filestore/pkg/simplefilestore"
	"github.com/tendant/simple-filestore/pkg/simplefilestore/repo/memory"
	memorystorage "github.com/tendant/simple-filestore/pkg/simplefilestore/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []simplefilestore.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []simplefilestore.Option{},
			expectError: true,
		},
		{
			name: "repository only should fail",
			options: []simplefilestore.Option{
				simplefilestore.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "repository and blob store should succeed",
			options: []simplefilestore.Option{
				simplefilestore.WithRepository(memory.New()),
				simplefilestore.WithBlobStore(memorystorage.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplefilestore.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

type fixture struct {
	svc   simplefilestore.Service
	repo  *memory.Repository
	blobs *memorystorage.Store
}

func setupTestService(t *testing.T) *fixture {
	t.Helper()

	repo := memory.New()
	blobs := memorystorage.New()

	svc, err := simplefilestore.New(
		simplefilestore.WithRepository(repo),
		simplefilestore.WithBlobStore(blobs),
	)
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, blobs: blobs}
}

func uploadReq(owner, filename, content string) simplefilestore.UploadFileRequest {
	return simplefilestore.UploadFileRequest{
		OwnerID:       owner,
		Reader:        strings.NewReader(content),
		Filename:      filename,
		ContentLength: int64(len(content)),
		Visibility:    simplefilestore.VisibilityPrivate,
	}
}

func sha256hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestUploadFile(t *testing.T) {
	ctx := context.Background()

	t.Run("successful upload", func(t *testing.T) {
		f := setupTestService(t)

		record, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		assert.NotEmpty(t, record.ID)
		assert.Equal(t, "u1", record.OwnerID)
		assert.Equal(t, "a.txt", record.OriginalFilename)
		assert.Equal(t, int64(5), record.Size)
		assert.Equal(t, sha256hex("hello"), record.ContentHash)
		assert.Equal(t, "text/plain; charset=utf-8", record.ContentType)
		assert.Empty(t, record.Tags)
		assert.NotEmpty(t, record.DownloadToken)
		assert.False(t, record.UploadDate.IsZero())
		assert.Equal(t, 1, f.blobs.Len())
	})

	t.Run("display filename falls back to upload filename", func(t *testing.T) {
		f := setupTestService(t)

		req := uploadReq("u1", "", "hello")
		req.OriginalFilename = "upload.bin"
		record, err := f.svc.UploadFile(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "upload.bin", record.OriginalFilename)
	})

	t.Run("content type is sniffed not declared", func(t *testing.T) {
		f := setupTestService(t)

		png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)
		req := simplefilestore.UploadFileRequest{
			OwnerID:       "u1",
			Reader:        bytes.NewReader(png),
			Filename:      "picture.txt",
			ContentLength: int64(len(png)),
			Visibility:    simplefilestore.VisibilityPublic,
		}
		record, err := f.svc.UploadFile(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "image/png", record.ContentType)
	})

	t.Run("tags are normalized", func(t *testing.T) {
		f := setupTestService(t)

		req := uploadReq("u1", "a.txt", "hello")
		req.Tags = []string{"Work", "  work ", "photos"}
		record, err := f.svc.UploadFile(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, []string{"photos", "work"}, record.Tags)
	})

	t.Run("empty file is rejected without storage", func(t *testing.T) {
		f := setupTestService(t)

		req := uploadReq("u1", "a.txt", "")
		_, err := f.svc.UploadFile(ctx, req)

		var invalidErr *simplefilestore.InvalidArgumentError
		require.ErrorAs(t, err, &invalidErr)
		assert.Equal(t, 0, f.blobs.Len())
	})

	t.Run("too many tags rejected without storage", func(t *testing.T) {
		f := setupTestService(t)

		req := uploadReq("u1", "a.txt", "hello")
		req.Tags = []string{"a", "b", "c", "d", "e", "f"}
		_, err := f.svc.UploadFile(ctx, req)

		var invalidErr *simplefilestore.InvalidArgumentError
		require.ErrorAs(t, err, &invalidErr)
		assert.Equal(t, "tags", invalidErr.Field)
		assert.Equal(t, 0, f.blobs.Len())
	})

	t.Run("invalid filenames rejected", func(t *testing.T) {
		f := setupTestService(t)

		for _, name := range []string{"../etc/passwd", "a/b.txt", "CON", " a.txt", "bad\x00name"} {
			_, err := f.svc.UploadFile(ctx, uploadReq("u1", name, "hello"))
			var invalidErr *simplefilestore.InvalidArgumentError
			assert.ErrorAs(t, err, &invalidErr, "filename %q", name)
		}
		assert.Equal(t, 0, f.blobs.Len())
	})

	t.Run("duplicate content conflict names the hash", func(t *testing.T) {
		f := setupTestService(t)

		_, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		_, err = f.svc.UploadFile(ctx, uploadReq("u1", "b.txt", "hello"))
		var conflictErr *simplefilestore.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, simplefilestore.ConstraintOwnerContentHash, conflictErr.Constraint)
		assert.Equal(t, sha256hex("hello"), conflictErr.Value)

		// The rejected blob was cleaned up; exactly one record and one
		// blob remain.
		assert.Equal(t, 1, f.blobs.Len())
		page, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{OwnerID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.TotalElements)
	})

	t.Run("duplicate filename conflict names the filename", func(t *testing.T) {
		f := setupTestService(t)

		_, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		_, err = f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "different"))
		var conflictErr *simplefilestore.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, simplefilestore.ConstraintOwnerFilename, conflictErr.Constraint)
		assert.Equal(t, "a.txt", conflictErr.Value)

		assert.Equal(t, 1, f.blobs.Len())
	})

	t.Run("same filename for different owners is fine", func(t *testing.T) {
		f := setupTestService(t)

		_, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)
		_, err = f.svc.UploadFile(ctx, uploadReq("u2", "a.txt", "hello"))
		require.NoError(t, err)
	})

	t.Run("insert failure cleans up the blob", func(t *testing.T) {
		repo := &failingRepo{Repository: memory.New(), createErr: fmt.Errorf("connection reset")}
		blobs := memorystorage.New()
		svc, err := simplefilestore.New(
			simplefilestore.WithRepository(repo),
			simplefilestore.WithBlobStore(blobs),
		)
		require.NoError(t, err)

		_, err = svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		var storageErr *simplefilestore.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, 0, blobs.Len())
	})
}

// failingRepo wraps the memory repository and fails CreateFile.
type failingRepo struct {
	*memory.Repository
	createErr error
}

func (r *failingRepo) CreateFile(ctx context.Context, record *simplefilestore.FileRecord) error {
	return r.createErr
}

func TestConcurrentUploads(t *testing.T) {
	// N concurrent uploads with identical owner and filename must yield
	// exactly one success; the repository's atomic constraint enforcement
	// is the arbiter, not the advisory pre-check.
	const n = 16
	ctx := context.Background()
	f := setupTestService(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := fmt.Sprintf("content-%d", i)
			_, err := f.svc.UploadFile(ctx, uploadReq("u1", "contested.txt", content))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			default:
				var conflictErr *simplefilestore.ConflictError
				if errors.As(err, &conflictErr) {
					conflicts++
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, f.blobs.Len())

	page, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{OwnerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalElements)
}

func TestListFiles(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, f *fixture) {
		t.Helper()
		specs := []struct {
			owner, name, content string
			visibility           simplefilestore.Visibility
			tags                 []string
		}{
			{"u1", "alpha.txt", "content a", simplefilestore.VisibilityPublic, []string{"work"}},
			{"u1", "beta.txt", "content bb", simplefilestore.VisibilityPrivate, []string{"work", "drafts"}},
			{"u1", "gamma.txt", "content ccc", simplefilestore.VisibilityPrivate, nil},
			{"u2", "delta.txt", "content dddd", simplefilestore.VisibilityPublic, []string{"work"}},
			{"u2", "epsilon.txt", "content eeeee", simplefilestore.VisibilityPrivate, nil},
		}
		for _, s := range specs {
			req := uploadReq(s.owner, s.name, s.content)
			req.Visibility = s.visibility
			req.Tags = s.tags
			_, err := f.svc.UploadFile(ctx, req)
			require.NoError(t, err)
		}
	}

	t.Run("no owner lists public only", func(t *testing.T) {
		f := setupTestService(t)
		seed(t, f)

		page, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.TotalElements)
		for _, record := range page.Items {
			assert.Equal(t, simplefilestore.VisibilityPublic, record.Visibility)
		}
	})

	t.Run("owner scope ignores visibility", func(t *testing.T) {
		f := setupTestService(t)
		seed(t, f)

		page, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{OwnerID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.TotalElements)
	})

	t.Run("tag filter is case insensitive", func(t *testing.T) {
		f := setupTestService(t)
		seed(t, f)

		page, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{OwnerID: "u1", Tag: "WORK"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.TotalElements)
	})

	t.Run("sort by size descending", func(t *testing.T) {
		f := setupTestService(t)
		seed(t, f)

		page, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{
			OwnerID: "u1", SortBy: "size", SortDir: "desc",
		})
		require.NoError(t, err)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "gamma.txt", page.Items[0].OriginalFilename)
		assert.Equal(t, "alpha.txt", page.Items[2].OriginalFilename)
	})

	t.Run("sort by filename ascending", func(t *testing.T) {
		f := setupTestService(t)
		seed(t, f)

		page, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{
			OwnerID: "u1", SortBy: "filename",
		})
		require.NoError(t, err)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "alpha.txt", page.Items[0].OriginalFilename)
		assert.Equal(t, "gamma.txt", page.Items[2].OriginalFilename)
	})

	t.Run("pagination keeps total", func(t *testing.T) {
		f := setupTestService(t)
		seed(t, f)

		page, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{
			OwnerID: "u1", SortBy: "filename", Page: 1, Size: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.TotalElements)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "gamma.txt", page.Items[0].OriginalFilename)
		assert.Equal(t, 1, page.PageNumber)
		assert.Equal(t, 2, page.PageSize)
	})

	t.Run("unknown sort key fails before any query", func(t *testing.T) {
		repo := &queryCountingRepo{Repository: memory.New()}
		blobs := memorystorage.New()
		svc, err := simplefilestore.New(
			simplefilestore.WithRepository(repo),
			simplefilestore.WithBlobStore(blobs),
		)
		require.NoError(t, err)

		_, err = svc.ListFiles(ctx, simplefilestore.ListFilesRequest{SortBy: "bogus"})
		var invalidErr *simplefilestore.InvalidArgumentError
		require.ErrorAs(t, err, &invalidErr)
		assert.Equal(t, 0, repo.queries)
	})

	t.Run("invalid sort direction rejected", func(t *testing.T) {
		f := setupTestService(t)

		_, err := f.svc.ListFiles(ctx, simplefilestore.ListFilesRequest{SortDir: "sideways"})
		var invalidErr *simplefilestore.InvalidArgumentError
		assert.ErrorAs(t, err, &invalidErr)
	})
}

// queryCountingRepo counts QueryFiles calls.
type queryCountingRepo struct {
	*memory.Repository
	queries int
}

func (r *queryCountingRepo) QueryFiles(ctx context.Context, q simplefilestore.FileQuery) ([]*simplefilestore.FileRecord, int64, error) {
	r.queries++
	return r.Repository.QueryFiles(ctx, q)
}

func TestDownloadFile(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token streams the content", func(t *testing.T) {
		f := setupTestService(t)

		record, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		descriptor, err := f.svc.DownloadFile(ctx, record.DownloadToken)
		require.NoError(t, err)
		defer descriptor.Body.Close()

		content, err := io.ReadAll(descriptor.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(content))
		assert.Equal(t, int64(5), descriptor.Size)
		assert.Equal(t, "a.txt", descriptor.Filename)
		assert.Equal(t, "text/plain; charset=utf-8", descriptor.ContentType)
	})

	t.Run("unknown token is not found", func(t *testing.T) {
		f := setupTestService(t)

		_, err := f.svc.DownloadFile(ctx, "no-such-token")
		assert.ErrorIs(t, err, simplefilestore.ErrFileNotFound)
	})

	t.Run("missing blob is a storage error", func(t *testing.T) {
		f := setupTestService(t)

		record, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		// Dangling metadata: the blob vanished out from under the record.
		require.NoError(t, f.blobs.Delete(ctx, record.BlobKey))

		_, err = f.svc.DownloadFile(ctx, record.DownloadToken)
		var storageErr *simplefilestore.StorageError
		assert.ErrorAs(t, err, &storageErr)
	})

	t.Run("unparseable stored content type falls back to binary", func(t *testing.T) {
		f := setupTestService(t)

		record := &simplefilestore.FileRecord{
			ID: "f1", OwnerID: "u1", OriginalFilename: "a.bin",
			Visibility: simplefilestore.VisibilityPrivate,
			ContentType: "not a media type", Size: 5,
			ContentHash: sha256hex("hello"), DownloadToken: "tok-1", BlobKey: "k1",
		}
		require.NoError(t, f.repo.CreateFile(ctx, record))
		require.NoError(t, f.blobs.Put(ctx, "k1", strings.NewReader("hello")))

		descriptor, err := f.svc.DownloadFile(ctx, "tok-1")
		require.NoError(t, err)
		defer descriptor.Body.Close()
		assert.Equal(t, "application/octet-stream", descriptor.ContentType)
	})
}

func TestRenameFile(t *testing.T) {
	ctx := context.Background()

	t.Run("successful rename", func(t *testing.T) {
		f := setupTestService(t)

		record, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		renamed, err := f.svc.RenameFile(ctx, "u1", record.ID, "b.txt")
		require.NoError(t, err)
		assert.Equal(t, "b.txt", renamed.OriginalFilename)

		stored, err := f.repo.GetFile(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "b.txt", stored.OriginalFilename)
	})

	t.Run("rename to current or blank name is a silent no-op", func(t *testing.T) {
		repo := &renameCountingRepo{Repository: memory.New()}
		blobs := memorystorage.New()
		svc, err := simplefilestore.New(
			simplefilestore.WithRepository(repo),
			simplefilestore.WithBlobStore(blobs),
		)
		require.NoError(t, err)

		record, err := svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		for _, name := range []string{"a.txt", "", "   "} {
			result, err := svc.RenameFile(ctx, "u1", record.ID, name)
			require.NoError(t, err)
			assert.Equal(t, "a.txt", result.OriginalFilename)
		}
		assert.Equal(t, 0, repo.updates)
	})

	t.Run("rename to a taken name conflicts", func(t *testing.T) {
		f := setupTestService(t)

		_, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)
		record, err := f.svc.UploadFile(ctx, uploadReq("u1", "b.txt", "other"))
		require.NoError(t, err)

		_, err = f.svc.RenameFile(ctx, "u1", record.ID, "a.txt")
		var conflictErr *simplefilestore.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, simplefilestore.ConstraintOwnerFilename, conflictErr.Constraint)
		assert.Equal(t, "a.txt", conflictErr.Value)
	})

	t.Run("rename by non-owner is unauthorized", func(t *testing.T) {
		f := setupTestService(t)

		record, err := f.svc.UploadFile(ctx, uploadReq("owner1", "a.txt", "hello"))
		require.NoError(t, err)

		_, err = f.svc.RenameFile(ctx, "attacker", record.ID, "stolen.txt")
		assert.ErrorIs(t, err, simplefilestore.ErrUnauthorized)

		stored, err := f.repo.GetFile(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "a.txt", stored.OriginalFilename)
	})

	t.Run("record without owner is never authorized", func(t *testing.T) {
		f := setupTestService(t)

		orphan := &simplefilestore.FileRecord{
			ID: "orphan", OriginalFilename: "x.txt",
			ContentHash: "deadbeef", DownloadToken: "token-orphan",
		}
		require.NoError(t, f.repo.CreateFile(ctx, orphan))

		_, err := f.svc.RenameFile(ctx, "", "orphan", "y.txt")
		assert.ErrorIs(t, err, simplefilestore.ErrUnauthorized)
	})

	t.Run("invalid new name rejected", func(t *testing.T) {
		f := setupTestService(t)

		record, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		_, err = f.svc.RenameFile(ctx, "u1", record.ID, "../b.txt")
		var invalidErr *simplefilestore.InvalidArgumentError
		assert.ErrorAs(t, err, &invalidErr)
	})

	t.Run("unknown file is not found", func(t *testing.T) {
		f := setupTestService(t)

		_, err := f.svc.RenameFile(ctx, "u1", "missing", "b.txt")
		assert.ErrorIs(t, err, simplefilestore.ErrFileNotFound)
	})
}

// renameCountingRepo counts UpdateFilename calls.
type renameCountingRepo struct {
	*memory.Repository
	updates int
}

func (r *renameCountingRepo) UpdateFilename(ctx context.Context, id, filename string) (int64, error) {
	r.updates++
	return r.Repository.UpdateFilename(ctx, id, filename)
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()

	t.Run("delete removes record and blob", func(t *testing.T) {
		f := setupTestService(t)

		record, err := f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		require.NoError(t, err)

		require.NoError(t, f.svc.DeleteFile(ctx, "u1", record.ID))
		assert.Equal(t, 0, f.blobs.Len())

		_, err = f.svc.DownloadFile(ctx, record.DownloadToken)
		assert.ErrorIs(t, err, simplefilestore.ErrFileNotFound)

		// The filename is free again.
		_, err = f.svc.UploadFile(ctx, uploadReq("u1", "a.txt", "hello"))
		assert.NoError(t, err)
	})

	t.Run("delete by non-owner is unauthorized", func(t *testing.T) {
		f := setupTestService(t)

		record, err := f.svc.UploadFile(ctx, uploadReq("owner1", "a.txt", "hello"))
		require.NoError(t, err)

		err = f.svc.DeleteFile(ctx, "attacker", record.ID)
		assert.ErrorIs(t, err, simplefilestore.ErrUnauthorized)
		assert.Equal(t, 1, f.blobs.Len())
	})

	t.Run("unknown file is not found", func(t *testing.T) {
		f := setupTestService(t)

		err := f.svc.DeleteFile(ctx, "u1", "missing")
		assert.ErrorIs(t, err, simplefilestore.ErrFileNotFound)
	})
}
