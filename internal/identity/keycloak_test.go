package identity

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRealm = "drop"

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// setupMockKeycloak serves the token endpoint and hands every admin API
// call to adminHandler.
func setupMockKeycloak(t *testing.T, tokenHandler, adminHandler http.HandlerFunc) (*httptest.Server, *Keycloak) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+testRealm+"/protocol/openid-connect/token", tokenHandler)
	mux.HandleFunc("/admin/realms/"+testRealm+"/", adminHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	kc := NewKeycloak(KeycloakConfig{
		BaseURL:           srv.URL + "/",
		Realm:             testRealm,
		AdminClientID:     "admin-cli",
		AdminClientSecret: "admin-secret",
		AppClientID:       "app",
		AppClientSecret:   "app-secret",
		Timeout:           2 * time.Second,
	}, srv.Client(), discardLogger())
	return srv, kc
}

// tokenOK answers client_credentials with an admin token and password
// grants with a user token, recording the grant type of each call.
func tokenOK(grants *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		*grants = append(*grants, r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "client_credentials":
			_, _ = io.WriteString(w, `{"access_token":"admin-token","token_type":"Bearer","expires_in":300}`)
		case "password":
			if r.PostForm.Get("password") != "right" || r.PostForm.Get("client_id") != "app" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			_, _ = io.WriteString(w, `{"access_token":"user-token","refresh_token":"r","expires_in":300,"token_type":"Bearer"}`)
		}
	}
}

func TestKeycloakCreateUser_LocationHeader(t *testing.T) {
	var grants []string
	var got map[string]any
	_, kc := setupMockKeycloak(t, tokenOK(&grants), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/realms/drop/users", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Location", "http://kc/admin/realms/drop/users/abc-123")
		w.WriteHeader(http.StatusCreated)
	})

	id, err := kc.CreateUser(context.Background(), NewUser{
		Username: "alice", Email: "a@example.com", Password: "pw", FullName: "Alice A",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, "alice", got["username"])
	assert.Equal(t, true, got["enabled"])
	assert.Equal(t, map[string]any{"full_name": []any{"Alice A"}}, got["attributes"])
	creds := got["credentials"].([]any)[0].(map[string]any)
	assert.Equal(t, "password", creds["type"])
	assert.Equal(t, false, creds["temporary"])
}

func TestKeycloakCreateUser_LookupWithoutLocation(t *testing.T) {
	var grants []string
	_, kc := setupMockKeycloak(t, tokenOK(&grants), func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			assert.Equal(t, "bob", r.URL.Query().Get("username"))
			_, _ = io.WriteString(w, `[{"id":"kc-bob","username":"bob"}]`)
		}
	})

	id, err := kc.CreateUser(context.Background(), NewUser{Username: "bob", Email: "b@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "kc-bob", id)
	// the admin token is fetched once and reused
	assert.Equal(t, []string{"client_credentials"}, grants)
}

func TestKeycloakCreateUser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"conflict", http.StatusConflict, errUserExists},
		{"server error", http.StatusInternalServerError, ErrUpstream},
		{"forbidden", http.StatusForbidden, ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var grants []string
			_, kc := setupMockKeycloak(t, tokenOK(&grants), func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := kc.CreateUser(context.Background(), NewUser{Username: "c", Email: "c@example.com", Password: "pw"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestKeycloakAdminTokenFailure(t *testing.T) {
	_, kc := setupMockKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"unauthorized_client"}`)
	}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("admin API must not be called without a token")
	})

	_, err := kc.CreateUser(context.Background(), NewUser{Username: "d", Email: "d@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestKeycloakFindUserID_Empty(t *testing.T) {
	var grants []string
	_, kc := setupMockKeycloak(t, tokenOK(&grants), func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	_, err := kc.FindUserID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSubjectNotFound)
}

func TestKeycloakAssignRealmRole(t *testing.T) {
	var grants []string
	var mapped []map[string]any
	_, kc := setupMockKeycloak(t, tokenOK(&grants), func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/realms/drop/roles/user":
			_, _ = io.WriteString(w, `{"id":"role-1","name":"user","composite":false}`)
		case r.Method == http.MethodPost && r.URL.Path == "/admin/realms/drop/users/kc-1/role-mappings/realm":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&mapped))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	require.NoError(t, kc.AssignRealmRole(context.Background(), "kc-1", "user"))
	require.Len(t, mapped, 1)
	assert.Equal(t, "role-1", mapped[0]["id"])

	err := kc.AssignRealmRole(context.Background(), "kc-1", "missing")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestKeycloakDeleteUser(t *testing.T) {
	var grants []string
	_, kc := setupMockKeycloak(t, tokenOK(&grants), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path == "/admin/realms/drop/users/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, kc.DeleteUser(context.Background(), "kc-1"))
	assert.NoError(t, kc.DeleteUser(context.Background(), "gone"))
}

func TestKeycloakPasswordGrant(t *testing.T) {
	var grants []string
	_, kc := setupMockKeycloak(t, tokenOK(&grants), http.NotFound)

	raw, err := kc.PasswordGrant(context.Background(), "alice", "right")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"user-token","refresh_token":"r","expires_in":300,"token_type":"Bearer"}`, string(raw))

	_, err = kc.PasswordGrant(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestKeycloakPasswordGrant_UpstreamDown(t *testing.T) {
	_, kc := setupMockKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, http.NotFound)

	_, err := kc.PasswordGrant(context.Background(), "alice", "right")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestKeycloakBreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	_, kc := setupMockKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, http.NotFound)

	for range 5 {
		_, err := kc.PasswordGrant(context.Background(), "a", "b")
		require.ErrorIs(t, err, ErrUpstream)
	}
	require.Equal(t, int32(5), calls.Load())

	_, err := kc.PasswordGrant(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}

func TestKeycloakTransportError(t *testing.T) {
	kc := NewKeycloak(KeycloakConfig{
		BaseURL: "http://127.0.0.1:1",
		Realm:   testRealm,
		Timeout: time.Second,
	}, nil, discardLogger())

	_, err := kc.PasswordGrant(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrUpstream)
}
