package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/semaphore"

	"otp-drop/internal/metrics"
)

// DefaultZipWorkers is the number of archives that may be built at once.
const DefaultZipWorkers = 2

// Zipper builds temporary zip archives of resolved files.
type Zipper struct {
	blobs   Blobs
	tempDir string
	slots   *semaphore.Weighted
	logger  *slog.Logger
}

func NewZipper(blobs Blobs, tempDir string, workers int, logger *slog.Logger) (*Zipper, error) {
	if workers <= 0 {
		workers = DefaultZipWorkers
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Zipper{
		blobs:   blobs,
		tempDir: tempDir,
		slots:   semaphore.NewWeighted(int64(workers)),
		logger:  logger,
	}, nil
}

// Archive is a finished zip on local disk. Close removes it.
type Archive struct {
	f       *os.File
	path    string
	Size    int64
	Entries int
	logger  *slog.Logger
}

func (a *Archive) Read(p []byte) (int, error) { return a.f.Read(p) }

func (a *Archive) Path() string { return a.path }

// Close releases and deletes the archive. Removal failures are logged.
func (a *Archive) Close() error {
	_ = a.f.Close()
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("temp archive cleanup failed", slog.String("path", a.path), slog.Any("err", err))
		return err
	}
	return nil
}

// Build waits for a worker slot, then writes one Deflate entry per file.
// Files that vanished since resolution are skipped with a warning. On
// error or cancellation the partial archive is removed.
func (z *Zipper) Build(ctx context.Context, files []ResolvedFile) (*Archive, error) {
	if err := z.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.ZipSlotAcquired()
	defer func() {
		z.slots.Release(1)
		metrics.ZipSlotReleased()
	}()

	start := time.Now()
	f, err := os.CreateTemp(z.tempDir, "files_*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	a := &Archive{f: f, path: f.Name(), logger: z.logger}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	zw := zip.NewWriter(f)
	buf := make([]byte, ChunkSize)
	for _, rf := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		added, err := z.addEntry(ctx, zw, rf, buf)
		if err != nil {
			return nil, err
		}
		if added {
			a.Entries++
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	if a.Size, err = f.Seek(0, io.SeekEnd); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	metrics.RecordZipBuild(time.Since(start))
	ok = true
	return a, nil
}

func (z *Zipper) addEntry(ctx context.Context, zw *zip.Writer, rf ResolvedFile, buf []byte) (bool, error) {
	rc, _, err := z.blobs.Open(ctx, rf.StoredName)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			z.logger.Warn("file vanished before archiving", slog.String("stored_filename", rf.StoredName))
			return false, nil
		}
		return false, fmt.Errorf("open %s: %w", rf.StoredName, err)
	}
	defer func() { _ = rc.Close() }()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     SanitizeFilename(rf.OriginalName),
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("add %s: %w", rf.StoredName, err)
	}
	if _, err := io.CopyBuffer(w, struct{ io.Reader }{rc}, buf); err != nil {
		return false, fmt.Errorf("compress %s: %w", rf.StoredName, err)
	}
	return true, nil
}
