// Package simplefilestore provides a reusable library for multi-tenant file
// storage with pluggable repository and blob storage backends.
//
// It exposes a single Service interface that orchestrates streamed upload
// ingestion (content-type sniffing, hashing-while-writing), per-owner
// deduplication by filename and by content hash, token-gated download, and
// rename/delete/listing of file metadata. Implementations of repositories
// (memory, Postgres) and blob stores (memory, filesystem, S3) are provided
// under subpackages.
//
// Uniqueness Strategy
//
// All cross-request correctness comes from the repository's atomic unique
// constraints at insert/update time. In-process pre-checks are advisory
// only: they short-circuit the common non-concurrent conflict cheaply but
// are never relied on for correctness. A repository implementation must
// report constraint violations as *UniqueViolationError carrying the
// structured constraint identity, never as message text to be parsed.
package simplefilestore
