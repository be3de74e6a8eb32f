package store

import "errors"

var (
	// ErrNoFiles means an upload request carried no file parts.
	ErrNoFiles = errors.New("no files provided")

	// ErrPayloadTooLarge means a single file crossed the per-file cap.
	ErrPayloadTooLarge = errors.New("file exceeds maximum size")

	// ErrOTPTaken is returned by a repository when the candidate code already exists.
	ErrOTPTaken = errors.New("otp already in use")

	// ErrOTPExhausted means every allocation attempt collided.
	ErrOTPExhausted = errors.New("could not allocate a unique code")

	// ErrInvalidOTP means the submitted code is not exactly six characters.
	ErrInvalidOTP = errors.New("otp must be exactly 6 characters")

	ErrBundleNotFound = errors.New("otp not found")

	// ErrCorruptBundle means a stored entry list is empty or cannot be decoded.
	ErrCorruptBundle = errors.New("bundle metadata is corrupted")

	// ErrNoResolvableFiles means every entry of a bundle is gone from storage.
	ErrNoResolvableFiles = errors.New("no files available for this otp")

	// ErrInvalidName means a download name carries path components.
	ErrInvalidName = errors.New("invalid file name")

	ErrBlobNotFound = errors.New("file not found")

	ErrBlobExists = errors.New("file already exists")

	ErrEntryNotFound = errors.New("entry not found")
)
