package simplefilestore

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// sniffWindow is how many bytes are peeked for content-type detection. It
// matches the mimetype library's own read limit; peeking never consumes the
// stream, so short uploads still hash and store their full content.
const sniffWindow = 3072

// ingestResult is the outcome of streaming one upload into the blob store.
type ingestResult struct {
	BlobKey     string
	ContentHash string
	ContentType string
	Size        int64
}

// ingest sniffs the content type from a bounded prefix of reader, then
// streams the whole content into the blob store under key while feeding a
// sha256 accumulator and a byte counter. The payload is never buffered in
// full.
func (s *service) ingest(ctx context.Context, key string, reader io.Reader) (*ingestResult, error) {
	br := bufio.NewReaderSize(reader, sniffWindow)
	head, err := br.Peek(sniffWindow)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, &StorageError{Op: "read", Key: key, Err: err}
	}
	contentType := mimetype.Detect(head).String()

	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(br, hasher)}
	if err := s.blobs.Put(ctx, key, counter); err != nil {
		return nil, &StorageError{Op: "put", Key: key, Err: err}
	}

	return &ingestResult{
		BlobKey:     key,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		ContentType: contentType,
		Size:        counter.n,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
