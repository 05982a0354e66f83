package runner

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Any user-supplied output name containing traversal, absolute paths or
// directory components must sanitize to a bare filename under the output
// directory.
func TestSanitizeOutputFileName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		jobName string
		want    string
	}{
		{"plain name", "docs.json", "alpha", "docs.json"},
		{"traversal", "../../etc/passwd.json", "alpha", "passwd.json"},
		{"absolute path", "/etc/passwd.json", "alpha", "passwd.json"},
		{"nested directories", "a/b/c/out.json", "alpha", "out.json"},
		{"backslash separators", "..\\..\\win\\out.json", "alpha", "out.json"},
		{"empty derives from job name", "", "alpha", "alpha.json"},
		{"dot only", ".", "alpha", "alpha.json"},
		{"double dot only", "..", "alpha", "alpha.json"},
		{"missing extension", "docs", "alpha", "docs.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeOutputFileName(tt.input, tt.jobName)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.ContainsAny(got, "/\\"))

			// The joined path must stay within the output root
			joined := filepath.Join("output", "jobs", got)
			rel, err := filepath.Rel(filepath.Join("output", "jobs"), joined)
			assert.NoError(t, err)
			assert.False(t, strings.HasPrefix(rel, ".."))
		})
	}
}
