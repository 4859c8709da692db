package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every record in a single JSON file. Each mutation reads
// the whole file, applies the change, and writes the new state to a temp
// file that is renamed over the old one, so readers never observe a
// half-written store. A store-wide mutex serializes the read-modify-write
// cycles of concurrent mutations.
type FileStore struct {
	path string

	mu sync.Mutex // held across each mutation's read-modify-write
}

// NewFileStore opens (or initializes) the metadata file at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	s := &FileStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(map[string]FileRecord{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Create(rec FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := recs[rec.ID]; ok {
		return fmt.Errorf("create %s: %w", rec.ID, ErrExists)
	}
	recs[rec.ID] = rec
	return s.write(recs)
}

// Get reads without taking the mutation lock. The rename in write
// guarantees a reader always sees a complete snapshot.
func (s *FileStore) Get(id string) (FileRecord, error) {
	recs, err := s.read()
	if err != nil {
		return FileRecord{}, err
	}
	rec, ok := recs[id]
	if !ok {
		return FileRecord{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (s *FileStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := recs[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	delete(recs, id)
	return s.write(recs)
}

func (s *FileStore) List() ([]FileRecord, error) {
	recs, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]FileRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec)
	}
	return out, nil
}

func (s *FileStore) read() (map[string]FileRecord, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	recs := map[string]FileRecord{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &recs); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return recs, nil
}

// write replaces the metadata file atomically: marshal to a temp file in
// the same directory, fsync, then rename over the live file.
func (s *FileStore) write(recs map[string]FileRecord) error {
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".metadata-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp metadata: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }() // no-op after successful rename

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp metadata: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp metadata: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}
