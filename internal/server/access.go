package server

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/NavineDevs/Navine-File-Sharer/internal/store"
)

// authorize gates retrieval of a finished object. Files without a password
// verifier are always granted. Protected files require the supplied
// password to verify against the stored bcrypt hash; a missing password
// and a wrong password are indistinguishable to the caller.
//
// No plaintext password is ever stored or logged.
func authorize(rec store.FileRecord, password string) error {
	if !rec.Protected() {
		return nil
	}
	if password == "" {
		return ErrAccessDenied
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return fmt.Errorf("%s: %w", rec.ID, ErrAccessDenied)
	}
	return nil
}
