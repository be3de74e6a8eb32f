package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	// ChunkSize is the copy unit for uploads and downloads.
	ChunkSize = 8 * 1024

	// DefaultMaxUploadBytes is the per-file cap (50 MiB).
	DefaultMaxUploadBytes int64 = 50 * 1024 * 1024

	createAttempts = 3
)

// Writer streams incoming files into a blob backend.
type Writer struct {
	blobs    Blobs
	maxBytes int64
	logger   *slog.Logger
}

func NewWriter(blobs Blobs, maxBytes int64, logger *slog.Logger) *Writer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Writer{blobs: blobs, maxBytes: maxBytes, logger: logger}
}

// MaxBytes returns the per-file cap.
func (w *Writer) MaxBytes() int64 { return w.maxBytes }

// NewBatch starts tracking the files written for one request.
func (w *Writer) NewBatch() *Batch {
	return &Batch{w: w}
}

// Batch is the set of files written during one upload request.
type Batch struct {
	w       *Writer
	entries []FileEntry
	bytes   int64
}

// Write stores one file and records it in the batch. A file that crosses
// the cap is removed before ErrPayloadTooLarge is returned; files written
// earlier stay until Discard.
func (b *Batch) Write(ctx context.Context, f *IncomingFile) (FileEntry, error) {
	original := SanitizeFilename(f.Name)

	var (
		stored string
		bw     BlobWriter
		err    error
	)
	for range createAttempts {
		stored = NewStoredName(original)
		bw, err = b.w.blobs.Create(ctx, stored)
		if !errors.Is(err, ErrBlobExists) {
			break
		}
	}
	if err != nil {
		return FileEntry{}, fmt.Errorf("create %s: %w", stored, err)
	}

	written, err := b.copyCapped(bw, f.Body)
	if err != nil {
		if aerr := bw.Abort(); aerr != nil {
			b.w.logger.Warn("abort partial upload failed",
				slog.String("stored_filename", stored), slog.Any("err", aerr))
		}
		if errors.Is(err, ErrPayloadTooLarge) {
			return FileEntry{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrPayloadTooLarge, original, b.w.maxBytes)
		}
		return FileEntry{}, fmt.Errorf("write %s: %w", stored, err)
	}
	if err := bw.Commit(); err != nil {
		return FileEntry{}, fmt.Errorf("commit %s: %w", stored, err)
	}

	entry := FileEntry{
		OriginalName: original,
		StoredName:   stored,
		ContentType:  f.ContentType,
		Size:         written,
	}
	b.entries = append(b.entries, entry)
	b.bytes += written
	return entry, nil
}

func (b *Batch) copyCapped(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > b.w.maxBytes {
				return total, ErrPayloadTooLarge
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, err
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func (b *Batch) Len() int { return len(b.entries) }

func (b *Batch) Bytes() int64 { return b.bytes }

// Entries returns a copy of the recorded entries in write order.
func (b *Batch) Entries() []FileEntry {
	out := make([]FileEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Discard removes every file of the batch. Failures are logged only.
func (b *Batch) Discard(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range b.entries {
		if err := b.w.blobs.Remove(ctx, e.StoredName); err != nil {
			b.w.logger.Warn("cleanup of uploaded file failed",
				slog.String("stored_filename", e.StoredName), slog.Any("err", err))
		}
	}
	b.entries = nil
	b.bytes = 0
}
