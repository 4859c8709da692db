package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/NavineDevs/Navine-File-Sharer/internal/store"
)

// finishUpload reassembles a session's chunks in index order into one
// stored object, records it in the metadata store and retires the session.
//
// The completeness check runs before any bytes are concatenated, so a
// partial object is never created. The client-supplied fileID and total are
// treated as untrusted: both must match the session's own state.
func (s *Server) finishUpload(ctx context.Context, uploadID, fileID string, total int) (store.FileRecord, error) {
	sess, err := s.registry.lookup(uploadID)
	if err != nil {
		return store.FileRecord{}, err
	}
	if fileID != sess.FileID {
		return store.FileRecord{}, fmt.Errorf("%s: %w", fileID, ErrSessionMismatch)
	}
	if total != sess.TotalChunks {
		return store.FileRecord{}, fmt.Errorf("client total %d, session expects %d: %w",
			total, sess.TotalChunks, ErrSessionMismatch)
	}

	if missing := s.registry.missingChunks(sess); len(missing) > 0 {
		return store.FileRecord{}, fmt.Errorf("%w: %d of %d chunks missing, first missing index %d",
			ErrIncompleteUpload, len(missing), sess.TotalChunks, missing[0])
	}

	dir := s.registry.ChunkDir(uploadID)
	assembled, err := chunkTotalSize(dir, sess.TotalChunks)
	if err != nil {
		// A chunk the registry recorded is gone from disk; the session is
		// unusable and the client has to restart.
		return store.FileRecord{}, fmt.Errorf("%w: %v", ErrIncompleteUpload, err)
	}

	// Claim the session. A concurrent finish for the same uploadID loses
	// here and reports UnknownSession.
	if _, err := s.registry.Close(uploadID); err != nil {
		return store.FileRecord{}, err
	}

	if err := s.objects.Put(ctx, sess.StoredName, newChunkSequence(dir, sess.TotalChunks), assembled); err != nil {
		return store.FileRecord{}, fmt.Errorf("assemble object: %w", err)
	}

	rec := store.FileRecord{
		ID:           sess.FileID,
		Name:         sess.Name,
		Size:         assembled,
		StoredName:   sess.StoredName,
		PasswordHash: sess.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(rec); err != nil {
		// The object is durable but unreachable by fileID. Try to undo the
		// write; if that also fails the object is orphaned and needs an
		// operator, not a retry.
		rmErr := s.objects.Remove(ctx, sess.StoredName)
		Error("integrity fault: object stored but metadata commit failed", map[string]any{
			"file_id":       sess.FileID,
			"stored_name":   sess.StoredName,
			"object_undone": rmErr == nil,
		}, errors.Join(err, rmErr))
		return store.FileRecord{}, fmt.Errorf("commit metadata: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		Warn("session chunk dir not removed", map[string]any{
			"upload_id": uploadID, "dir": dir, "error": err.Error(),
		})
	}

	s.metrics.RecordUpload(assembled)
	return rec, nil
}

// chunkTotalSize stats every chunk file and sums their sizes. A missing
// file is reported so finish can fail before writing anything.
func chunkTotalSize(dir string, total int) (int64, error) {
	var sum int64
	for i := 0; i < total; i++ {
		fi, err := os.Stat(filepath.Join(dir, chunkFileName(i)))
		if err != nil {
			return 0, fmt.Errorf("chunk %d missing on disk", i)
		}
		sum += fi.Size()
	}
	return sum, nil
}

// chunkSequence reads a session's chunks in strictly ascending index
// order, opening one file at a time. Index order is the sole correctness
// guarantee of reassembly.
type chunkSequence struct {
	dir   string
	total int
	next  int
	cur   *os.File
}

func newChunkSequence(dir string, total int) *chunkSequence {
	return &chunkSequence{dir: dir, total: total}
}

func (c *chunkSequence) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			if c.next >= c.total {
				return 0, io.EOF
			}
			f, err := os.Open(filepath.Join(c.dir, chunkFileName(c.next)))
			if err != nil {
				return 0, fmt.Errorf("open chunk %d: %w", c.next, err)
			}
			c.cur = f
			c.next++
		}

		n, err := c.cur.Read(p)
		if err == io.EOF {
			closeErr := c.cur.Close()
			c.cur = nil
			if closeErr != nil {
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}
