package server

import (
	"strings"
	"testing"
)

func TestCheckExtension(t *testing.T) {
	allowed := parseExtensions("zip,PDF, .txt")

	for _, name := range []string{"a.zip", "b.PDF", "c.txt", "dir.name.ZIP"} {
		if err := checkExtension(name, allowed); err != nil {
			t.Errorf("checkExtension(%q) = %v, want nil", name, err)
		}
	}
	for _, name := range []string{"a.exe", "noext", "trailingdot.", ".hidden"} {
		if err := checkExtension(name, allowed); err == nil {
			t.Errorf("checkExtension(%q) = nil, want rejection", name)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"my file (1).txt", "my_file__1_.txt"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{"résumé.pdf", "r_sum_.pdf"},
		{"..leading.dots.txt", "leading.dots.txt"},
		{"", "unnamed"},
		{"...", "unnamed"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"
	got := sanitizeFilename(long)
	if len(got) > 255 {
		t.Fatalf("sanitized length %d exceeds 255", len(got))
	}
	if !strings.HasSuffix(got, ".txt") {
		t.Errorf("extension lost: %q", got[len(got)-10:])
	}
}
