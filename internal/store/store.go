// Package store holds durable file metadata. A FileRecord is the single
// source of truth for a finished upload: if the record exists, the stored
// object exists, and the record says where to find it.
package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the given file id.
	ErrNotFound = errors.New("file record not found")

	// ErrExists is returned when creating a record whose id is already taken.
	ErrExists = errors.New("file record already exists")
)

// FileRecord describes one finished stored object.
type FileRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`                    // original filename as uploaded
	Size         int64     `json:"size"`                    // assembled size in bytes
	StoredName   string    `json:"stored_name"`             // object name in the object store
	PasswordHash string    `json:"password_hash,omitempty"` // bcrypt hash, empty when unprotected
	CreatedAt    time.Time `json:"created_at"`
}

// Protected reports whether downloads of this file require a password.
func (r FileRecord) Protected() bool {
	return r.PasswordHash != ""
}

// Store is the metadata store contract. Implementations must serialize
// mutations with respect to each other and must never expose a partially
// written record to readers.
type Store interface {
	// Create persists a new record. The caller assigns the id.
	Create(rec FileRecord) error
	// Get returns the record for id, or ErrNotFound.
	Get(id string) (FileRecord, error)
	// Remove deletes the record for id, or returns ErrNotFound.
	Remove(id string) error
	// List returns all records in unspecified order.
	List() ([]FileRecord, error)
}
