// Package postgres provides a PostgreSQL Repository backed by pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-filestore/pkg/simplefilestore"
)

// DBTX allows using either a connection pool or a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplefilestore.Repository using PostgreSQL. The
// files table carries the three unique constraints (see migrations/), so a
// single INSERT or UPDATE is the atomic arbiter under concurrent writers.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository.
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository from a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Constraint names as declared in the schema. Violations are classified by
// exact name, never by parsing the error message.
const (
	constraintOwnerFilename = "files_owner_filename_key"
	constraintOwnerHash     = "files_owner_content_hash_key"
	constraintToken         = "files_download_token_key"
)

// uniqueViolation maps a pg unique-violation error (SQLSTATE 23505) to the
// structured constraint identity, or passes other errors through untouched.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}

	constraint := simplefilestore.ConstraintUnknown
	switch pgErr.ConstraintName {
	case constraintOwnerFilename:
		constraint = simplefilestore.ConstraintOwnerFilename
	case constraintOwnerHash:
		constraint = simplefilestore.ConstraintOwnerContentHash
	case constraintToken:
		constraint = simplefilestore.ConstraintDownloadToken
	}
	return &simplefilestore.UniqueViolationError{Constraint: constraint, Err: err}
}

const fileColumns = `id, owner_id, original_filename, visibility, tags,
	upload_date, content_type, size, content_hash, download_token, blob_key`

func (r *Repository) CreateFile(ctx context.Context, record *simplefilestore.FileRecord) error {
	query := `
		INSERT INTO files (
			id, owner_id, original_filename, visibility, tags,
			upload_date, content_type, size, content_hash, download_token, blob_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := r.db.Exec(ctx, query,
		record.ID, record.OwnerID, record.OriginalFilename, string(record.Visibility),
		tags, record.UploadDate, record.ContentType, record.Size,
		record.ContentHash, record.DownloadToken, record.BlobKey)
	if err != nil {
		return uniqueViolation(err)
	}
	return nil
}

func (r *Repository) GetFile(ctx context.Context, id string) (*simplefilestore.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) GetFileByToken(ctx context.Context, token string) (*simplefilestore.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE download_token = $1`, fileColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, token))
}

// sortColumns whitelists ORDER BY targets; the service only ever sends these
// values, but the repository still refuses anything else rather than
// interpolating caller input into SQL.
var sortColumns = map[simplefilestore.SortField]string{
	simplefilestore.SortByFilename:    "original_filename",
	simplefilestore.SortByUploadDate:  "upload_date",
	simplefilestore.SortByContentType: "content_type",
	simplefilestore.SortBySize:        "size",
	simplefilestore.SortByTags:        "tags",
}

func (r *Repository) QueryFiles(ctx context.Context, q simplefilestore.FileQuery) ([]*simplefilestore.FileRecord, int64, error) {
	column, ok := sortColumns[q.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported sort field %q", q.SortBy)
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	var (
		clauses []string
		args    []interface{}
	)
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id = $%d", len(args)))
	} else if q.PublicOnly {
		args = append(args, string(simplefilestore.VisibilityPublic))
		clauses = append(clauses, fmt.Sprintf("visibility = $%d", len(args)))
	}
	if q.Tag != "" {
		args = append(args, q.Tag)
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT count(*) FROM files %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, q.Limit)
	limitArg := len(args)
	args = append(args, q.Offset)
	offsetArg := len(args)
	query := fmt.Sprintf(`SELECT %s FROM files %s ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d`,
		fileColumns, where, column, direction, limitArg, offsetArg)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*simplefilestore.FileRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *Repository) UpdateFilename(ctx context.Context, id, filename string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE files SET original_filename = $2 WHERE id = $1`, id, filename)
	if err != nil {
		return 0, uniqueViolation(err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteFile(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return simplefilestore.ErrFileNotFound
	}
	return nil
}

func (r *Repository) FilenameExists(ctx context.Context, ownerID, filename string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM files WHERE owner_id = $1 AND original_filename = $2)`,
		ownerID, filename).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Repository) scanOne(row pgx.Row) (*simplefilestore.FileRecord, error) {
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplefilestore.ErrFileNotFound
		}
		return nil, err
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*simplefilestore.FileRecord, error) {
	var (
		record     simplefilestore.FileRecord
		visibility string
	)
	if err := row.Scan(
		&record.ID, &record.OwnerID, &record.OriginalFilename, &visibility,
		&record.Tags, &record.UploadDate, &record.ContentType, &record.Size,
		&record.ContentHash, &record.DownloadToken, &record.BlobKey,
	); err != nil {
		return nil, err
	}
	record.Visibility = simplefilestore.Visibility(visibility)
	if record.Tags == nil {
		record.Tags = []string{}
	}
	return &record, nil
}
