package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"otp-drop/internal/metrics"
	"otp-drop/internal/store"
)

const downloadCacheControl = "public, max-age=86400, immutable"

type otpRequest struct {
	OTP string `json:"otp"`
}

type fileMetadata struct {
	OriginalName string `json:"original_filename"`
	FileType     string `json:"file_type"`
	DownloadURL  string `json:"download_url"`
	FileSize     int64  `json:"file_size"`
}

type accessResp struct {
	OTP   string         `json:"otp"`
	Files []fileMetadata `json:"files"`
}

// accessHandler lists the downloadable files behind an OTP.
func (s *Server) accessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req otpRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		res, err := s.cfg.Store.Resolve(r.Context(), req.OTP)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		base := s.baseURL(r)
		files := make([]fileMetadata, 0, len(res.Files))
		for _, f := range res.Files {
			files = append(files, fileMetadata{
				OriginalName: f.OriginalName,
				FileType:     f.ContentType,
				DownloadURL:  base + "/store/download/" + url.PathEscape(f.StoredName),
				FileSize:     f.Size,
			})
		}
		writeJSON(w, http.StatusOK, accessResp{OTP: res.OTP, Files: files})
	}
}

// baseURL is the configured public URL or the scheme and host the request
// arrived on.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "https" || p == "http" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

// downloadHandler streams one stored file by its storage name.
func (s *Server) downloadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// chi matches on the raw path when one is set, leaving the
		// parameter escaped.
		name := chi.URLParam(r, "stored_filename")
		if r.URL.RawPath != "" {
			unescaped, err := url.PathUnescape(name)
			if err != nil {
				s.writeError(w, r, store.ErrInvalidName)
				return
			}
			name = unescaped
		}

		f, err := s.cfg.Store.Lookup(r.Context(), name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if etagMatches(r.Header.Get("If-None-Match"), f.ETag) {
			w.Header().Set("ETag", f.ETag)
			w.WriteHeader(http.StatusNotModified)
			return
		}

		body, err := s.cfg.Store.Open(r.Context(), f)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		defer func() { _ = body.Close() }()

		h := w.Header()
		h.Set("ETag", f.ETag)
		h.Set("Cache-Control", downloadCacheControl)
		h.Set("Content-Disposition", attachment(f.DisplayName))
		h.Set("Content-Type", store.GuessContentType(f.DisplayName))
		h.Set("Content-Length", strconv.FormatInt(f.Size, 10))
		w.WriteHeader(http.StatusOK)

		n, err := store.CopyChunked(w, body)
		metrics.RecordDownload("file", n)
		if err != nil {
			requestLogger(s.logger, r).Warn("download interrupted",
				slog.String("stored_filename", name), slog.Int64("sent", n), slog.Any("err", err))
		}
	}
}

// zipHandler builds an archive of every file behind an OTP and streams it.
func (s *Server) zipHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req otpRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		archive, res, err := s.cfg.Store.Archive(r.Context(), req.OTP)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		defer func() { _ = archive.Close() }()

		h := w.Header()
		h.Set("Content-Type", "application/zip")
		h.Set("Content-Disposition", attachment("files_"+res.OTP+".zip"))
		h.Set("Content-Length", strconv.FormatInt(archive.Size, 10))
		w.WriteHeader(http.StatusOK)

		n, err := store.CopyChunked(w, archive)
		metrics.RecordDownload("zip", n)
		if err != nil {
			requestLogger(s.logger, r).Warn("zip download interrupted",
				slog.String("otp", res.OTP), slog.Int64("sent", n), slog.Any("err", err))
		}
	}
}

// etagMatches evaluates an If-None-Match header against a strong ETag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// attachment renders a Content-Disposition value. Names outside printable
// ASCII get an RFC 5987 filename* alongside a lossy ASCII fallback.
func attachment(name string) string {
	ascii := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || r < 0x20 || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	v := `attachment; filename="` + ascii + `"`
	if ascii != name {
		v += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return v
}
