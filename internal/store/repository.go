package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"otp-drop/internal/db"
)

// Repository persists bundles in the bundles table.
type Repository struct {
	conn *sql.DB
}

func NewRepository(conn *sql.DB) *Repository {
	return &Repository{conn: conn}
}

// Insert commits a bundle in its own transaction.
func (r *Repository) Insert(ctx context.Context, otp string, files []FileEntry) (*Bundle, error) {
	payload, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode entries: %w", err)
	}

	b := &Bundle{OTP: otp, Files: files}
	err = db.WithTx(ctx, r.conn, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO bundles (otp, file_entries)
			 VALUES ($1, $2::jsonb)
			 RETURNING id, created_at, updated_at`,
			otp, string(payload),
		).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrOTPTaken
		}
		return nil, err
	}
	return b, nil
}

// GetByOTP loads a bundle. Entry lists that do not decode as an array come
// back as ErrCorruptBundle.
func (r *Repository) GetByOTP(ctx context.Context, otp string) (*Bundle, error) {
	var (
		b   Bundle
		raw []byte
	)
	err := r.conn.QueryRowContext(ctx,
		`SELECT id, otp, file_entries, created_at, updated_at
		 FROM bundles
		 WHERE otp = $1`,
		otp,
	).Scan(&b.ID, &b.OTP, &raw, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBundleNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(raw, &b.Files); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBundle, err)
	}
	return &b, nil
}

// FindEntry returns the bundle entry that owns a stored filename.
func (r *Repository) FindEntry(ctx context.Context, storedName string) (*FileEntry, error) {
	var raw []byte
	err := r.conn.QueryRowContext(ctx,
		`SELECT e
		 FROM bundles b, jsonb_array_elements(b.file_entries) e
		 WHERE b.file_entries @> jsonb_build_array(jsonb_build_object('stored_filename', $1::text))
		   AND e->>'stored_filename' = $1::text
		 LIMIT 1`,
		storedName,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	var e FileEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBundle, err)
	}
	return &e, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.conn.PingContext(ctx)
}
