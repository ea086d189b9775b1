package io

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingFile struct {
	path string
}

func (f failingFile) Path() string { return f.path }

func (f failingFile) WriteTo(w io.Writer) (int64, error) {
	n, _ := w.Write([]byte("partial"))
	return int64(n), errors.New("boom")
}

func TestOutputTo(t *testing.T) {
	assert := assert.New(t)
	dest := t.TempDir()

	files := []File{
		&RawFile{FPath: "manifest.json", Content: []byte(`{"version":"1.0.0"}`)},
		&RawFile{FPath: "EcsPipelineStack.template.json", Content: []byte("{}")},
		&RawFile{FPath: "nested/dir/file.txt", Content: []byte("abc")},
	}
	n, err := OutputTo(context.Background(), files, dest, 2)
	if !assert.NoError(err) {
		return
	}
	assert.Equal(int64(len(`{"version":"1.0.0"}`)+2+3), n)

	content, err := os.ReadFile(filepath.Join(dest, "nested", "dir", "file.txt"))
	assert.NoError(err)
	assert.Equal("abc", string(content))

	// overwrites existing files
	_, err = OutputTo(context.Background(), []File{&RawFile{FPath: "nested/dir/file.txt", Content: []byte("x")}}, dest, 1)
	assert.NoError(err)
	content, err = os.ReadFile(filepath.Join(dest, "nested", "dir", "file.txt"))
	assert.NoError(err)
	assert.Equal("x", string(content))
}

func TestOutputTo_FailureLeavesExistingFile(t *testing.T) {
	assert := assert.New(t)
	dest := t.TempDir()
	assert.NoError(os.WriteFile(filepath.Join(dest, "a.txt"), []byte("original"), 0644))

	_, err := OutputTo(context.Background(), []File{failingFile{path: "a.txt"}}, dest, 4)
	assert.ErrorContains(err, "could not write a.txt")

	content, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	assert.NoError(err)
	assert.Equal("original", string(content))

	entries, err := os.ReadDir(dest)
	assert.NoError(err)
	assert.Len(entries, 1, "temporary file should be removed")
}

func TestOutputTo_NoFiles(t *testing.T) {
	n, err := OutputTo(context.Background(), nil, t.TempDir(), 4)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
