package files

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), maxBytes, []string{"txt", "pdf"})
	require.NoError(t, err)
	return s
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Plain", input: "report.pdf", expected: "report.pdf"},
		{name: "PathStripped", input: "../../etc/passwd", expected: "passwd"},
		{name: "SpacesReplaced", input: "my report v2.txt", expected: "my_report_v2.txt"},
		{name: "LeadingDots", input: "...hidden.txt", expected: "hidden.txt"},
		{name: "Empty", input: "", expected: "file"},
		{name: "OnlyJunk", input: "???", expected: "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestStoreAllowed(t *testing.T) {
	s := newTestStore(t, 1024)

	assert.True(t, s.Allowed("notes.txt"))
	assert.True(t, s.Allowed("REPORT.PDF"))
	assert.False(t, s.Allowed("shell.sh"))
	assert.False(t, s.Allowed("noextension"))
}

func TestStoreSave(t *testing.T) {
	s := newTestStore(t, 1024)

	path, size, err := s.Save(7, "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "7_"))
	assert.True(t, strings.HasSuffix(path, "_notes.txt"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestStoreSave_Extension(t *testing.T) {
	s := newTestStore(t, 1024)

	_, _, err := s.Save(1, "malware.exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrExtension)
}

func TestStoreSave_TooLarge(t *testing.T) {
	s := newTestStore(t, 4)

	_, _, err := s.Save(1, "big.txt", strings.NewReader("hello"))
	assert.ErrorIs(t, err, ErrTooLarge)

	// the partial file is removed
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreResolve(t *testing.T) {
	s := newTestStore(t, 1024)

	path, _, err := s.Save(1, "a.txt", strings.NewReader("x"))
	require.NoError(t, err)

	resolved, err := s.Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	_, err = s.Resolve("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideStore)

	_, err = s.Resolve(filepath.Join(s.Dir(), "missing.txt"))
	assert.Error(t, err)
}
