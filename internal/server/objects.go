package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrObjectNotFound is returned by ObjectStore lookups for unknown names.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes one finished stored object.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// ObjectStore holds finished objects. Put must be durable before it
// returns: a reader must never be able to observe a partially written
// object under its final name.
type ObjectStore interface {
	Put(ctx context.Context, name string, r io.Reader, size int64) error
	Open(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, name string) (ObjectInfo, error)
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}

// DiskObjects stores objects as plain files in a single directory. The
// file mtime doubles as the sweep timestamp.
type DiskObjects struct {
	dir string
}

// NewDiskObjects creates the objects directory if needed.
func NewDiskObjects(dir string) (*DiskObjects, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	return &DiskObjects{dir: dir}, nil
}

// Put streams r into a temp file, fsyncs, then renames to the final name.
func (d *DiskObjects) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := validObjectName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.dir, ".put-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(d.dir, name)); err != nil {
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

func (d *DiskObjects) Open(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error) {
	if err := validObjectName(name); err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(filepath.Join(d.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, fmt.Errorf("open %s: %w", name, ErrObjectNotFound)
		}
		return nil, ObjectInfo{}, fmt.Errorf("open %s: %w", name, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return f, ObjectInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (d *DiskObjects) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	if err := validObjectName(name); err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(filepath.Join(d.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ObjectInfo{}, fmt.Errorf("stat %s: %w", name, ErrObjectNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", name, err)
	}
	return ObjectInfo{Name: name, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (d *DiskObjects) Remove(ctx context.Context, name string) error {
	if err := validObjectName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(d.dir, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, ErrObjectNotFound)
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// List skips in-flight temp files so a concurrent Put is never reported.
func (d *DiskObjects) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	var out []ObjectInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue // removed mid-scan
		}
		out = append(out, ObjectInfo{Name: e.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	return out, nil
}

// validObjectName rejects anything that could escape the objects directory.
func validObjectName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid object name %q", name)
	}
	return nil
}
