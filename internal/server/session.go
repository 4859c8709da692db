package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UploadSession tracks one in-progress chunked upload from /api/init until
// finish or abandonment. Session state is first-class in the registry;
// the chunk directory on disk is storage, not the existence marker.
type UploadSession struct {
	ID          string
	FileID      string
	Name        string // original filename
	StoredName  string // final object name, fileID-prefixed
	Size        int64  // declared total size
	ChunkSize   int64
	TotalChunks int

	PasswordHash string // bcrypt, empty when the file is unprotected
	CreatedAt    time.Time

	// Guarded by Registry.mu.
	lastActive time.Time
	received   map[int]struct{}
}

// Registry owns the lifetime of active upload sessions and their chunk
// spool directories. All bookkeeping happens under one mutex; chunk I/O
// does not.
type Registry struct {
	spool string // root directory for per-session chunk dirs
	cfg   Config

	mu       sync.Mutex
	sessions map[string]*UploadSession
}

// NewRegistry creates the chunk spool root if needed.
func NewRegistry(spool string, cfg Config) (*Registry, error) {
	if err := os.MkdirAll(spool, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk spool: %w", err)
	}
	return &Registry{
		spool:    spool,
		cfg:      cfg,
		sessions: make(map[string]*UploadSession),
	}, nil
}

// Open validates the declared upload, allocates fresh identifiers, creates
// the session's chunk directory and registers the session.
func (r *Registry) Open(filename string, size int64, password string) (*UploadSession, error) {
	if size <= 0 {
		return nil, fmt.Errorf("declared size must be positive")
	}
	if size > r.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w (%d > %d)", ErrSizeExceeded, size, r.cfg.MaxFileSize)
	}
	if err := checkExtension(filename, r.cfg.AllowedExts); err != nil {
		return nil, err
	}

	var hash string
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}

	fileID := uuid.NewString()
	now := time.Now().UTC()
	sess := &UploadSession{
		ID:           uuid.NewString(),
		FileID:       fileID,
		Name:         filename,
		StoredName:   fileID + "-" + sanitizeFilename(filename),
		Size:         size,
		ChunkSize:    r.cfg.ChunkSize,
		TotalChunks:  r.cfg.ExpectedChunks(size),
		PasswordHash: hash,
		CreatedAt:    now,
		lastActive:   now,
		received:     make(map[int]struct{}),
	}

	if err := os.MkdirAll(r.ChunkDir(sess.ID), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	return sess, nil
}

// lookup returns the active session, or ErrUnknownSession.
func (r *Registry) lookup(id string) (*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownSession)
	}
	return sess, nil
}

// Close removes the session from the active set and hands it to the
// caller, which becomes responsible for the chunk directory. Closing an
// unknown or already-closed session is an error, not a no-op: the chunk
// storage is gone after the first close.
func (r *Registry) Close(id string) (*UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownSession)
	}
	delete(r.sessions, id)
	return sess, nil
}

// markReceived records a persisted chunk index and refreshes the idle clock.
func (r *Registry) markReceived(id string, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		sess.received[index] = struct{}{}
		sess.lastActive = time.Now().UTC()
	}
}

// missingChunks returns the indices in [0, total) not yet received, in
// ascending order.
func (r *Registry) missingChunks(sess *UploadSession) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var missing []int
	for i := 0; i < sess.TotalChunks; i++ {
		if _, ok := sess.received[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Expire removes every session idle longer than maxIdle and returns them
// so the caller can reclaim their chunk directories.
func (r *Registry) Expire(maxIdle time.Duration) []*UploadSession {
	cutoff := time.Now().UTC().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*UploadSession
	for id, sess := range r.sessions {
		if sess.lastActive.Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, sess)
		}
	}
	return expired
}

// Active reports whether id is a live session.
func (r *Registry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// ChunkDir returns the spool directory for a session.
func (r *Registry) ChunkDir(id string) string {
	return filepath.Join(r.spool, id)
}

// Spool returns the chunk spool root.
func (r *Registry) Spool() string {
	return r.spool
}
