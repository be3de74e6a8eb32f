package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"otp-drop/internal/metrics"
)

// BundleRepository is everything the service needs from persistence.
type BundleRepository interface {
	BundleInserter
	BundleReader
	EntryFinder
}

// Options configures a Service.
type Options struct {
	Blobs          Blobs
	Repo           BundleRepository
	MaxUploadBytes int64
	OTPAttempts    int
	ZipWorkers     int
	TempDir        string
	Logger         *slog.Logger
}

// Service ties intake, allocation and retrieval together.
type Service struct {
	blobs     Blobs
	writer    *Writer
	allocator *Allocator
	resolver  *Resolver
	streamer  *Streamer
	zipper    *Zipper
	logger    *slog.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Blobs == nil || opts.Repo == nil {
		return nil, errors.New("store: blobs and repository are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	zipper, err := NewZipper(opts.Blobs, opts.TempDir, opts.ZipWorkers, logger.With("component", "zip"))
	if err != nil {
		return nil, err
	}

	return &Service{
		blobs:     opts.Blobs,
		writer:    NewWriter(opts.Blobs, opts.MaxUploadBytes, logger.With("component", "writer")),
		allocator: NewAllocator(opts.Repo, opts.OTPAttempts, logger.With("component", "otp")),
		resolver:  NewResolver(opts.Repo, opts.Blobs, logger.With("component", "resolver")),
		streamer:  NewStreamer(opts.Blobs, opts.Repo, logger.With("component", "streamer")),
		zipper:    zipper,
		logger:    logger,
	}, nil
}

func (s *Service) MaxUploadBytes() int64 { return s.writer.MaxBytes() }

// Store writes every file from src and commits them under a new code. On
// any failure all files written for this call are removed.
func (s *Service) Store(ctx context.Context, src FileSource) (*Bundle, error) {
	batch := s.writer.NewBatch()

	fail := func(reason string, err error) (*Bundle, error) {
		batch.Discard(ctx)
		metrics.RecordUploadError(reason)
		return nil, err
	}

	for {
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail("bad_request", fmt.Errorf("read upload: %w", err))
		}
		if _, err := batch.Write(ctx, f); err != nil {
			if errors.Is(err, ErrPayloadTooLarge) {
				return fail("too_large", err)
			}
			return fail("write_failed", err)
		}
	}

	if batch.Len() == 0 {
		return fail("no_files", ErrNoFiles)
	}

	bundle, err := s.allocator.Allocate(ctx, batch.Entries())
	if err != nil {
		if errors.Is(err, ErrOTPExhausted) {
			return fail("otp_exhausted", err)
		}
		return fail("commit_failed", err)
	}

	metrics.RecordUpload(batch.Len(), batch.Bytes())
	s.logger.Info("bundle stored",
		slog.Int64("bundle_id", bundle.ID),
		slog.Int("files", batch.Len()),
		slog.Int64("bytes", batch.Bytes()))
	return bundle, nil
}

// Resolve returns the available files behind a code.
func (s *Service) Resolve(ctx context.Context, otp string) (*Resolution, error) {
	return s.resolver.Resolve(ctx, otp)
}

// Lookup returns download metadata for a stored filename.
func (s *Service) Lookup(ctx context.Context, name string) (*StoredFile, error) {
	return s.streamer.Lookup(ctx, name)
}

// Open returns the content of a looked up file.
func (s *Service) Open(ctx context.Context, f *StoredFile) (io.ReadCloser, error) {
	return s.streamer.Open(ctx, f)
}

// Archive resolves a code and builds a temporary zip of its files. The
// caller must Close the archive.
func (s *Service) Archive(ctx context.Context, otp string) (*Archive, *Resolution, error) {
	res, err := s.resolver.Resolve(ctx, otp)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.zipper.Build(ctx, res.Files)
	if err != nil {
		return nil, nil, err
	}
	return a, res, nil
}

// Check reports whether the blob backend is usable.
func (s *Service) Check(ctx context.Context) error {
	return s.blobs.Check(ctx)
}
