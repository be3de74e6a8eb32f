package store

import (
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultFilename replaces names that sanitize to nothing.
	DefaultFilename = "uploaded_file"

	maxFilenameRunes = 255

	// Stored names must fit a single path component on common filesystems.
	maxStoredNameBytes = 255

	octetStream = "application/octet-stream"
)

// SanitizeFilename reduces a client supplied name to a bare file name:
// directory components are dropped, control characters removed and the
// result capped at 255 characters with the extension kept.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		if r < 32 || r == utf8.RuneError {
			return -1
		}
		return r
	}, name)

	if name == "." || name == ".." {
		name = ""
	}

	name = capRunes(name, maxFilenameRunes)

	if name == "" {
		return DefaultFilename
	}
	return name
}

// capRunes truncates s to at most n runes, keeping the extension when it
// is short enough to survive.
func capRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	ext := filepath.Ext(s)
	extRunes := utf8.RuneCountInString(ext)
	if extRunes >= n {
		ext, extRunes = "", 0
	}
	base := []rune(strings.TrimSuffix(s, ext))
	return string(base[:n-extRunes]) + ext
}

// NewStoredName returns "<32 hex chars>_<sanitized>", trimmed to fit a
// single path component.
func NewStoredName(sanitized string) string {
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "") + "_"
	budget := maxStoredNameBytes - len(prefix)
	if len(sanitized) > budget {
		cut := budget
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = sanitized[:cut]
	}
	return prefix + sanitized
}

// ValidStoredName reports whether name is a single path component that can
// be handed to a blob backend.
func ValidStoredName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return filepath.Base(name) == name
}

// GuessContentType maps a file name extension to a media type without
// parameters, falling back to application/octet-stream.
func GuessContentType(name string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if i := strings.Index(t, ";"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if t == "" {
		return octetStream
	}
	return t
}

// effectiveContentType keeps a declared type unless it is empty or the
// generic binary type.
func effectiveContentType(declared, name string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" || strings.EqualFold(declared, octetStream) {
		return GuessContentType(name)
	}
	return declared
}
