package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// EntryFinder looks up the bundle entry owning a stored filename.
type EntryFinder interface {
	FindEntry(ctx context.Context, storedName string) (*FileEntry, error)
}

// StoredFile is the metadata needed to answer a single-file download.
type StoredFile struct {
	Name        string
	DisplayName string
	ContentType string
	ETag        string
	Size        int64
}

// Streamer serves individual stored files.
type Streamer struct {
	blobs  Blobs
	finder EntryFinder
	logger *slog.Logger
}

func NewStreamer(blobs Blobs, finder EntryFinder, logger *slog.Logger) *Streamer {
	return &Streamer{blobs: blobs, finder: finder, logger: logger}
}

// Lookup validates name and returns its metadata without opening it.
func (s *Streamer) Lookup(ctx context.Context, name string) (*StoredFile, error) {
	if !ValidStoredName(name) {
		return nil, ErrInvalidName
	}

	size, err := s.blobs.Stat(ctx, name)
	if err != nil {
		return nil, err
	}

	display := name
	if s.finder != nil {
		e, err := s.finder.FindEntry(ctx, name)
		switch {
		case err == nil && e.OriginalName != "":
			display = SanitizeFilename(e.OriginalName)
		case err != nil && !errors.Is(err, ErrEntryNotFound):
			s.logger.Warn("display name lookup failed",
				slog.String("stored_filename", name), slog.Any("err", err))
		}
	}

	return &StoredFile{
		Name:        name,
		DisplayName: display,
		ContentType: GuessContentType(display),
		ETag:        `"` + name + `"`,
		Size:        size,
	}, nil
}

// Open returns the content of a file previously returned by Lookup.
func (s *Streamer) Open(ctx context.Context, f *StoredFile) (io.ReadCloser, error) {
	rc, _, err := s.blobs.Open(ctx, f.Name)
	return rc, err
}

// CopyChunked copies src to dst in ChunkSize pieces and returns the bytes
// written. It deliberately bypasses ReaderFrom/WriterTo fast paths.
func CopyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
			if w != n {
				return total, io.ErrShortWrite
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
