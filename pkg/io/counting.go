package io

import (
	"io"

	"go.uber.org/atomic"
)

type (
	// CountingWriter counts the bytes written through it. When Total is set, it is incremented too, so that
	// writers used concurrently can report a combined count.
	CountingWriter struct {
		Delegate     io.Writer
		BytesWritten int64
		Total        *atomic.Int64
	}

	// CountingReader is the reading counterpart of [CountingWriter].
	CountingReader struct {
		Delegate  io.Reader
		BytesRead int64
		Total     *atomic.Int64
	}
)

func (w *CountingWriter) Write(p []byte) (int, error) {
	n, err := w.Delegate.Write(p)
	w.BytesWritten += int64(n)
	if w.Total != nil {
		w.Total.Add(int64(n))
	}
	return n, err
}

func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.Delegate.Read(p)
	r.BytesRead += int64(n)
	if r.Total != nil {
		r.Total.Add(int64(n))
	}
	return n, err
}
