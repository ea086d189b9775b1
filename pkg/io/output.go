package io

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alitto/pond"
	"github.com/flab-reels/authcdk/pkg/closenicely"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// OutputTo writes files under dest, at most workers at a time, and returns the number of bytes written. Each file is
// written to a temporary file in its directory and renamed into place, so a failed write never leaves a partial
// file behind.
func OutputTo(ctx context.Context, files []File, dest string, workers int) (int64, error) {
	if workers < 1 {
		workers = 1
	}
	var total atomic.Int64
	if len(files) == 0 {
		return 0, nil
	}

	pool := pond.New(workers, len(files), pond.Context(ctx))
	defer pool.StopAndWait()

	group, groupCtx := pool.GroupContext(ctx)
	for _, f := range files {
		f := f
		group.Submit(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			return writeFile(f, dest, &total)
		})
	}
	if err := group.Wait(); err != nil {
		return total.Load(), err
	}
	zap.S().Debugf("wrote %d files (%d bytes) to %s", len(files), total.Load(), dest)
	return total.Load(), nil
}

func writeFile(f File, dest string, total *atomic.Int64) (err error) {
	path := filepath.Join(dest, filepath.FromSlash(f.Path()))
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return fmt.Errorf("could not create directory for %s: %w", f.Path(), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("could not write %s: %w", f.Path(), err)
	}
	defer func() {
		if err != nil {
			closenicely.FuncOrDebug(func() error { return os.Remove(tmp.Name()) })
		}
	}()

	w := &CountingWriter{Delegate: tmp, Total: total}
	if _, err = f.WriteTo(w); err != nil {
		closenicely.OrDebug(tmp)
		return fmt.Errorf("could not write %s: %w", f.Path(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("could not write %s: %w", f.Path(), err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not write %s: %w", f.Path(), err)
	}
	return nil
}
