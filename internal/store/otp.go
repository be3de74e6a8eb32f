package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"otp-drop/internal/metrics"
)

const (
	// OTPLength is the number of symbols in a code.
	OTPLength = 6

	// DefaultOTPAttempts bounds the allocation loop.
	DefaultOTPAttempts = 5

	// RFC 4648 base32 alphabet. 32 symbols divide 256 evenly, so masking a
	// random byte keeps the draw uniform.
	otpAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

// GenerateOTP draws a six symbol base32 code from crypto/rand.
func GenerateOTP() (string, error) {
	var raw [OTPLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	out := make([]byte, OTPLength)
	for i, b := range raw {
		out[i] = otpAlphabet[b&31]
	}
	return string(out), nil
}

// NormalizeOTP trims a submitted code, checks its length and folds it to
// upper case.
func NormalizeOTP(raw string) (string, error) {
	otp := strings.TrimSpace(raw)
	if utf8.RuneCountInString(otp) != OTPLength {
		return "", ErrInvalidOTP
	}
	return strings.ToUpper(otp), nil
}

// BundleInserter persists a bundle under a candidate code. It must return
// ErrOTPTaken when the code already exists.
type BundleInserter interface {
	Insert(ctx context.Context, otp string, files []FileEntry) (*Bundle, error)
}

// Allocator commits bundles under fresh codes, retrying on collision.
type Allocator struct {
	repo     BundleInserter
	attempts int
	generate func() (string, error)
	logger   *slog.Logger
}

func NewAllocator(repo BundleInserter, attempts int, logger *slog.Logger) *Allocator {
	if attempts <= 0 {
		attempts = DefaultOTPAttempts
	}
	return &Allocator{repo: repo, attempts: attempts, generate: GenerateOTP, logger: logger}
}

// Allocate inserts files under a new code. Collisions are retried up to the
// configured number of attempts, then ErrOTPExhausted is returned. Any other
// persistence error ends the loop immediately.
func (a *Allocator) Allocate(ctx context.Context, files []FileEntry) (*Bundle, error) {
	for attempt := 1; attempt <= a.attempts; attempt++ {
		otp, err := a.generate()
		if err != nil {
			return nil, fmt.Errorf("generate otp: %w", err)
		}

		bundle, err := a.repo.Insert(ctx, otp, files)
		if err == nil {
			return bundle, nil
		}
		if !errors.Is(err, ErrOTPTaken) {
			return nil, fmt.Errorf("insert bundle: %w", err)
		}

		metrics.RecordOTPCollision()
		a.logger.Debug("otp collision", slog.Int("attempt", attempt))
	}

	a.logger.Error("otp allocation exhausted", slog.Int("attempts", a.attempts))
	return nil, ErrOTPExhausted
}
