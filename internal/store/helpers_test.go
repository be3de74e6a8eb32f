package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memRepo is an in-memory BundleRepository with a unique index on otp.
type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	bundles   map[string]*Bundle
	inserts   int
	insertErr error
}

func newMemRepo() *memRepo {
	return &memRepo{bundles: make(map[string]*Bundle)}
}

func (m *memRepo) Insert(_ context.Context, otp string, files []FileEntry) (*Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if _, ok := m.bundles[otp]; ok {
		return nil, ErrOTPTaken
	}
	m.nextID++
	now := time.Now()
	b := &Bundle{ID: m.nextID, OTP: otp, Files: files, CreatedAt: now, UpdatedAt: now}
	m.bundles[otp] = b
	return b, nil
}

func (m *memRepo) GetByOTP(_ context.Context, otp string) (*Bundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bundles[otp]
	if !ok {
		return nil, ErrBundleNotFound
	}
	return b, nil
}

func (m *memRepo) FindEntry(_ context.Context, storedName string) (*FileEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bundles {
		for _, e := range b.Files {
			if e.StoredName == storedName {
				e := e
				return &e, nil
			}
		}
	}
	return nil, ErrEntryNotFound
}

func (m *memRepo) put(otp string, files ...FileEntry) *Bundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b := &Bundle{ID: m.nextID, OTP: otp, Files: files}
	m.bundles[otp] = b
	return b
}

// fixedCodes returns the given codes in order, then repeats the last one.
func fixedCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

func newTestBlobs(t *testing.T) *LocalBlobs {
	t.Helper()
	b, err := NewLocalBlobs(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBlobs: %v", err)
	}
	return b
}

func writeBlob(t *testing.T, b *LocalBlobs, name, content string) {
	t.Helper()
	if err := os.WriteFile(b.Locate(name), []byte(content), 0o640); err != nil {
		t.Fatalf("write blob: %v", err)
	}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// failingReader yields some bytes and then an error.
type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

var _ io.Reader = (*failingReader)(nil)
