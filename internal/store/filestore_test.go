package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "metadata.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func testRecord(id string) FileRecord {
	return FileRecord{
		ID:         id,
		Name:       "report.pdf",
		Size:       1024,
		StoredName: id + "-report.pdf",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestFileStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("abc123")
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get("abc123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != rec {
		t.Errorf("Get returned %+v, want %+v", got, rec)
	}
}

func TestFileStore_GetUnknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_CreateDuplicate(t *testing.T) {
	s := newTestStore(t)

	if err := s.Create(testRecord("dup")); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := s.Create(testRecord("dup")); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestFileStore_Remove(t *testing.T) {
	s := newTestStore(t)

	if err := s.Create(testRecord("gone")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Remove("gone"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if err := s.Remove("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestFileStore_List(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Create(testRecord(fmt.Sprintf("f%d", i))); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	recs, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("expected 3 records, got %d", len(recs))
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	rec := testRecord("persist")
	if err := s.Create(rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get("persist")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got != rec {
		t.Errorf("Get after reopen returned %+v, want %+v", got, rec)
	}
}

// The store file must always hold complete JSON, and no temp files may be
// left behind after mutations.
func TestFileStore_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")

	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := s.Create(testRecord(fmt.Sprintf("r%d", i))); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var recs map[string]FileRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		t.Fatalf("store file is not valid JSON: %v", err)
	}
	if len(recs) != 10 {
		t.Errorf("expected 10 records on disk, got %d", len(recs))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "metadata.json" {
			t.Errorf("leftover file in store dir: %s", e.Name())
		}
	}
}

func TestFileStore_ConcurrentMutations(t *testing.T) {
	s := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Create(testRecord(fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Create: %v", err)
		}
	}

	recs, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != n {
		t.Errorf("lost update: expected %d records, got %d", n, len(recs))
	}
}
