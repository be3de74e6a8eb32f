// Package store implements file intake, OTP bundles and retrieval: writing
// uploads to a blob backend, committing them under a short unique code, and
// resolving that code back into downloadable files or a zip archive.
package store

import (
	"io"
	"time"
)

// FileEntry describes one stored file inside a bundle.
type FileEntry struct {
	OriginalName string `json:"original_filename"`
	StoredName   string `json:"stored_filename"`
	ContentType  string `json:"file_type"`
	Size         int64  `json:"file_size"`
}

// Bundle is the committed set of files behind one OTP.
type Bundle struct {
	ID        int64
	OTP       string
	Files     []FileEntry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolvedFile is a bundle entry whose blob is known to exist.
type ResolvedFile struct {
	OriginalName string
	StoredName   string
	ContentType  string
	Size         int64
	// Path is the backend location (absolute path or s3:// URI).
	Path string
}

// Resolution is the outcome of looking up an OTP.
type Resolution struct {
	OTP   string
	Files []ResolvedFile
}

// IncomingFile is one named byte stream of unknown length.
type IncomingFile struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// FileSource yields incoming files in request order. Next returns io.EOF
// once the source is drained.
type FileSource interface {
	Next() (*IncomingFile, error)
}

// SliceSource is a FileSource over an in-memory list.
type SliceSource struct {
	files []*IncomingFile
	pos   int
}

func NewSliceSource(files ...*IncomingFile) *SliceSource {
	return &SliceSource{files: files}
}

func (s *SliceSource) Next() (*IncomingFile, error) {
	if s.pos >= len(s.files) {
		return nil, io.EOF
	}
	f := s.files[s.pos]
	s.pos++
	return f, nil
}
