package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileDevice replays a pre-recorded file as if it were captured live.
type FileDevice struct {
	Path string
}

func (d *FileDevice) Name() string {
	return "file:" + filepath.Base(d.Path)
}

func (d *FileDevice) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.Path)
	switch {
	case err == nil:
		return &fileStream{f: f}, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return nil, fmt.Errorf("open %s: %w", d.Path, err)
}

// fileStream yields the whole file regardless of when Close is called.
type fileStream struct {
	f    *os.File
	done bool
}

func (s *fileStream) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	n, err := s.f.Read(p)
	if err != nil {
		s.done = true
		s.f.Close()
	}
	return n, err
}

func (s *fileStream) Close() error { return nil }
