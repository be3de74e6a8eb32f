package server

import (
	"crypto/subtle"
	"net/http"

	"otp-drop/internal/identity"
)

const apiKeyHeader = "X-API-Key"

// apiKeyMiddleware requires the static key in the X-API-Key header.
func apiKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(apiKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				w.Header().Set("WWW-Authenticate", apiKeyHeader)
				writeDetail(w, http.StatusUnauthorized, "Invalid key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type signupResp struct {
	ID       int64  `json:"id"`
	KCID     string `json:"kc_id"`
	Username string `json:"username"`
}

func (s *Server) signupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.SignupRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		u, err := s.cfg.Accounts.Signup(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, signupResp{ID: u.ID, KCID: u.KCID, Username: u.Username})
	}
}

// signinHandler relays the provider's token response unchanged.
func (s *Server) signinHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req identity.SigninRequest
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		raw, err := s.cfg.Accounts.Signin(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}
