package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"otp-drop/internal/identity"
	"otp-drop/internal/store"
)

// errMalformedBody marks request bodies that could not be decoded.
var errMalformedBody = errors.New("malformed request body")

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// statusFor maps a service error to a status code and client message.
// Messages of 5xx answers never include internal error text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errMalformedBody):
		return http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, store.ErrNoFiles):
		return http.StatusUnprocessableEntity, "no files provided"
	case errors.Is(err, store.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, store.ErrOTPExhausted):
		return http.StatusInternalServerError, "could not allocate a unique code"
	case errors.Is(err, store.ErrInvalidOTP):
		return http.StatusBadRequest, "otp must be exactly 6 characters"
	case errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest, "invalid filename"
	case errors.Is(err, store.ErrBundleNotFound):
		return http.StatusNotFound, "otp not found"
	case errors.Is(err, store.ErrNoResolvableFiles):
		return http.StatusNotFound, "no files available for this otp"
	case errors.Is(err, store.ErrBlobNotFound):
		return http.StatusNotFound, "file not found on server"
	case errors.Is(err, store.ErrCorruptBundle):
		return http.StatusInternalServerError, "bundle metadata is corrupted"

	case errors.Is(err, identity.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrUsernameTaken):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, identity.ErrUpstream):
		return http.StatusBadGateway, "identity provider unavailable"
	case errors.Is(err, identity.ErrSubjectNotFound):
		return http.StatusInternalServerError, "failed to obtain identity provider user id"
	}
	return http.StatusInternalServerError, "internal server error"
}

// writeError answers with the mapped status and logs server-side failures
// with the full error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		requestLogger(s.logger, r).Error("request failed",
			slog.String("path", r.URL.Path), slog.Int("status", status), slog.Any("err", err))
	}
	writeDetail(w, status, detail)
}

// decodeJSON reads a single JSON object into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errMalformedBody
	}
	return nil
}
