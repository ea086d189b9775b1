package io

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flab-reels/authcdk/pkg/closenicely"
)

type (
	// File is an output file, addressed by its path relative to the directory it is written to.
	File interface {
		Path() string
		WriteTo(io.Writer) (int64, error)
	}

	// RawFile holds its content in memory, such as a rendered template.
	RawFile struct {
		FPath   string
		Content []byte
	}

	// FileRef is a file on disk at Root/FPath. Its content is read each time it is written.
	FileRef struct {
		FPath string
		Root  string
	}
)

func (r *RawFile) Path() string {
	return r.FPath
}

func (r *RawFile) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Content)
	return int64(n), err
}

func (r *FileRef) Path() string {
	return r.FPath
}

func (r *FileRef) AbsPath() string {
	return filepath.Join(r.Root, filepath.FromSlash(r.FPath))
}

func (r *FileRef) Open() (*os.File, error) {
	return os.Open(r.AbsPath())
}

func (r *FileRef) WriteTo(w io.Writer) (int64, error) {
	f, err := r.Open()
	if err != nil {
		return 0, err
	}
	defer closenicely.OrDebug(f)
	return io.Copy(w, f)
}

// Glob returns the regular files under root whose slash-separated relative path matches the doublestar pattern,
// sorted by path.
func Glob(root string, pattern string) ([]*FileRef, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var refs []*FileRef
	for _, m := range matches {
		info, err := fs.Stat(fsys, m)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		refs = append(refs, &FileRef{FPath: m, Root: root})
	}
	return refs, nil
}
