package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// chunkFileName returns the spool filename for one chunk index.
func chunkFileName(index int) string {
	return strconv.Itoa(index) + ".part"
}

// PutChunk persists one chunk of one session, idempotently by index: a
// retransmission overwrites the previous bytes. The chunk is written to a
// temp file and renamed into place, so a dropped connection leaves the
// index absent rather than a truncated chunk.
func (r *Registry) PutChunk(id string, index int, body io.Reader) (int64, error) {
	sess, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= sess.TotalChunks {
		return 0, fmt.Errorf("index %d of %d: %w", index, sess.TotalChunks, ErrIndexOutOfRange)
	}

	dir := r.ChunkDir(id)
	tmp, err := os.CreateTemp(dir, ".chunk-*.tmp")
	if err != nil {
		// The directory vanishes when the session is finished or expired
		// between lookup and write.
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", id, ErrUnknownSession)
		}
		return 0, fmt.Errorf("create chunk temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	// Read one byte past the chunk size so an oversized body is detected
	// without buffering it all.
	n, err := io.Copy(tmp, io.LimitReader(body, sess.ChunkSize+1))
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write chunk: %w", err)
	}
	if n > sess.ChunkSize {
		_ = tmp.Close()
		return 0, fmt.Errorf("%d bytes: %w", n, ErrPayloadTooLarge)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("sync chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close chunk: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, chunkFileName(index))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", id, ErrUnknownSession)
		}
		return 0, fmt.Errorf("commit chunk: %w", err)
	}

	r.markReceived(id, index)
	return n, nil
}
