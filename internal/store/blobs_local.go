package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalBlobs stores files in one flat directory.
type LocalBlobs struct {
	dir string
}

// NewLocalBlobs creates dir if needed and returns a backend rooted there.
func NewLocalBlobs(dir string) (*LocalBlobs, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalBlobs{dir: abs}, nil
}

func (b *LocalBlobs) Dir() string { return b.dir }

func (b *LocalBlobs) path(name string) (string, error) {
	if !ValidStoredName(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(b.dir, name), nil
}

func (b *LocalBlobs) Create(_ context.Context, name string) (BlobWriter, error) {
	p, err := b.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrBlobExists
		}
		return nil, err
	}
	return &localWriter{f: f}, nil
}

func (b *LocalBlobs) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	p, err := b.path(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrBlobNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, ErrBlobNotFound
	}
	return f, info.Size(), nil
}

func (b *LocalBlobs) Stat(_ context.Context, name string) (int64, error) {
	p, err := b.path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrBlobNotFound
		}
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, ErrBlobNotFound
	}
	return info.Size(), nil
}

func (b *LocalBlobs) Remove(_ context.Context, name string) error {
	p, err := b.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (b *LocalBlobs) Locate(name string) string {
	return filepath.Join(b.dir, name)
}

// Check creates and removes a probe file so a read-only mount fails readiness.
func (b *LocalBlobs) Check(_ context.Context) error {
	f, err := os.CreateTemp(b.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("upload dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

type localWriter struct {
	f *os.File
}

func (w *localWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *localWriter) Commit() error {
	if err := w.f.Sync(); err != nil {
		_ = w.Abort()
		return err
	}
	return w.f.Close()
}

func (w *localWriter) Abort() error {
	_ = w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
