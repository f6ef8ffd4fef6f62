package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDataHash(t *testing.T) {
	hash := CalculateDataHash([]byte("hello"))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)
	assert.True(t, ValidateHash(hash))
}

func TestCalculateFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	hash, err := CalculateFileHash(path)
	require.NoError(t, err)
	assert.Equal(t, CalculateDataHash([]byte("hello")), hash)
}

func TestValidateHash(t *testing.T) {
	assert.False(t, ValidateHash("short"))
	assert.False(t, ValidateHash("ZZf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("content")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), data)
	assert.NoFileExists(t, path+".tmp")
}

func TestMoveFile(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src.txt")
	dst := filepath.Join(base, "sub", "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	require.NoError(t, MoveFile(src, dst))

	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestMoveFile_MissingSource(t *testing.T) {
	base := t.TempDir()
	err := MoveFile(filepath.Join(base, "nope.txt"), filepath.Join(base, "dst.txt"))
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"normal.jpg", "normal.jpg"},
		{"../../etc/passwd", "passwd"},
		{"with\x00nul.jpg", "withnul.jpg"},
		{"  spaced.jpg  ", "spaced.jpg"},
		{"", "file"},
		{"..", "file"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestSplitExt(t *testing.T) {
	base, ext := SplitExt("photo.edit.jpg")
	assert.Equal(t, "photo.edit", base)
	assert.Equal(t, ".jpg", ext)

	base, ext = SplitExt("noext")
	assert.Equal(t, "noext", base)
	assert.Equal(t, "", ext)
}
