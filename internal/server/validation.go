// validation.go - filename checks applied before a session is opened.
package server

import (
	"path/filepath"
	"strings"
)

// checkExtension verifies the filename carries an allowed extension.
func checkExtension(filename string, allowed map[string]bool) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || !allowed[ext] {
		return ErrExtensionRejected
	}
	return nil
}

// sanitizeFilename maps anything outside [a-zA-Z0-9._-] to underscores so
// the name is safe as part of an on-disk object name. Mirrors the behavior
// the browser client has always relied on.
func sanitizeFilename(filename string) string {
	var b strings.Builder
	b.Grow(len(filename))
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), " .")
	if len(name) > 255 {
		ext := filepath.Ext(name)
		if len(ext) >= 255 {
			ext = ""
		}
		name = name[:255-len(ext)] + ext
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}
