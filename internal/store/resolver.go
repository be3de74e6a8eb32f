package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// BundleReader loads committed bundles by code.
type BundleReader interface {
	GetByOTP(ctx context.Context, otp string) (*Bundle, error)
}

// Resolver turns a code into the files that still exist in storage.
type Resolver struct {
	repo   BundleReader
	blobs  Blobs
	logger *slog.Logger
}

func NewResolver(repo BundleReader, blobs Blobs, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, blobs: blobs, logger: logger}
}

// Resolve validates the code, loads its bundle and returns the entries
// whose blobs are present, in bundle order.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	otp, err := NormalizeOTP(raw)
	if err != nil {
		return nil, err
	}

	bundle, err := r.repo.GetByOTP(ctx, otp)
	if err != nil {
		return nil, err
	}
	if len(bundle.Files) == 0 {
		return nil, fmt.Errorf("%w: bundle %d has no entries", ErrCorruptBundle, bundle.ID)
	}

	files := make([]ResolvedFile, 0, len(bundle.Files))
	for i, e := range bundle.Files {
		if e.StoredName == "" {
			r.logger.Warn("bundle entry without stored filename",
				slog.Int64("bundle_id", bundle.ID), slog.Int("index", i))
			continue
		}
		if _, err := r.blobs.Stat(ctx, e.StoredName); err != nil {
			if errors.Is(err, ErrBlobNotFound) || errors.Is(err, ErrInvalidName) {
				r.logger.Warn("stored file missing",
					slog.Int64("bundle_id", bundle.ID),
					slog.String("stored_filename", e.StoredName))
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", e.StoredName, err)
		}

		original := e.OriginalName
		if original == "" {
			original = e.StoredName
		}
		files = append(files, ResolvedFile{
			OriginalName: original,
			StoredName:   e.StoredName,
			ContentType:  effectiveContentType(e.ContentType, original),
			Size:         e.Size,
			Path:         r.blobs.Locate(e.StoredName),
		})
	}

	if len(files) == 0 {
		return nil, ErrNoResolvableFiles
	}
	return &Resolution{OTP: otp, Files: files}, nil
}
