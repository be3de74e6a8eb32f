package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"otp-drop/internal/store"
)

// uploadField is the repeated multipart field carrying files.
const uploadField = "files"

// multipartSource yields the file parts of a streaming multipart body in
// order, skipping plain form fields and parts of other names.
type multipartSource struct {
	mr *multipart.Reader
}

func (m *multipartSource) Next() (*store.IncomingFile, error) {
	for {
		part, err := m.mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
		}
		if part.FormName() != uploadField {
			continue
		}
		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
		}
		name, isFile := params["filename"]
		if !isFile {
			continue
		}
		return &store.IncomingFile{
			Name:        name,
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		}, nil
	}
}

type uploadResp struct {
	Message string   `json:"message"`
	OTP     string   `json:"otp"`
	Files   []string `json:"files"`
}

// uploadHandler accepts multipart uploads, streams each file part to storage
// and commits the set under a fresh OTP.
//
// Form field: files (repeated)
func (s *Server) uploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "expected a multipart/form-data body with files")
			return
		}

		bundle, err := s.cfg.Store.Store(r.Context(), &multipartSource{mr: mr})
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		names := make([]string, len(bundle.Files))
		for i, f := range bundle.Files {
			names[i] = f.OriginalName
		}
		writeJSON(w, http.StatusCreated, uploadResp{
			Message: "Files stored successfully",
			OTP:     bundle.OTP,
			Files:   names,
		})
	}
}
