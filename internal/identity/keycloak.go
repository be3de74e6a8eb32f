package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"otp-drop/internal/metrics"
)

const maxErrorBody = 4 << 10

// KeycloakConfig addresses one realm and its two clients: an admin client
// with service account rights and the application client used for sign-in.
type KeycloakConfig struct {
	BaseURL           string
	Realm             string
	AdminClientID     string
	AdminClientSecret string
	AppClientID       string
	AppClientSecret   string
	Timeout           time.Duration
}

// NewUser is the payload for realm user creation.
type NewUser struct {
	Username string
	Email    string
	Password string
	FullName string
}

// Keycloak talks to the realm's token endpoint and admin REST API.
type Keycloak struct {
	cfg        KeycloakConfig
	httpClient *http.Client
	admin      oauth2.TokenSource
	breaker    *Breaker
	logger     *slog.Logger
}

// NewKeycloak builds a client. A nil httpClient gets one bounded by cfg.Timeout.
func NewKeycloak(cfg KeycloakConfig, httpClient *http.Client, logger *slog.Logger) *Keycloak {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	k := &Keycloak{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.AdminClientID,
		ClientSecret: cfg.AdminClientSecret,
		TokenURL:     k.tokenEndpoint(),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The token source keeps this context for refreshes; it only carries
	// the HTTP client.
	k.admin = cc.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, httpClient))
	k.breaker = NewBreaker(5, 30*time.Second, isUpstream, logger.With("subsystem", "breaker"))
	return k
}

func isUpstream(err error) bool { return errors.Is(err, ErrUpstream) }

func (k *Keycloak) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.cfg.BaseURL, url.PathEscape(k.cfg.Realm))
}

func (k *Keycloak) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", k.cfg.BaseURL, url.PathEscape(k.cfg.Realm))
}

// call runs one provider operation under the breaker and the call timeout.
func (k *Keycloak) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, k.cfg.Timeout)
	defer cancel()

	err := k.breaker.Execute(func() error { return fn(ctx) })
	if errors.Is(err, ErrCircuitOpen) {
		err = fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	metrics.RecordIDPCall(op, err)
	return err
}

func (k *Keycloak) adminToken() (string, error) {
	tok, err := k.admin.Token()
	if err != nil {
		return "", fmt.Errorf("%w: admin token: %v", ErrUpstream, err)
	}
	return tok.AccessToken, nil
}

func (k *Keycloak) doAdmin(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := k.adminToken()
	if err != nil {
		return nil, err
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, k.adminBaseURL()+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return resp, nil
}

func unexpectedStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// CreateUser creates an enabled realm user with a permanent password and
// returns its id. A 409 maps to errUserExists.
func (k *Keycloak) CreateUser(ctx context.Context, u NewUser) (string, error) {
	var id string
	err := k.call(ctx, "create_user", func(ctx context.Context) error {
		attrs := map[string][]string{}
		if u.FullName != "" {
			attrs["full_name"] = []string{u.FullName}
		}
		body := map[string]any{
			"username": u.Username,
			"email":    u.Email,
			"enabled":  true,
			"credentials": []map[string]any{
				{"type": "password", "value": u.Password, "temporary": false},
			},
			"attributes": attrs,
		}

		resp, err := k.doAdmin(ctx, http.MethodPost, "/users", body)
		if err != nil {
			return err
		}
		defer drain(resp)

		switch resp.StatusCode {
		case http.StatusCreated, http.StatusNoContent:
		case http.StatusConflict:
			return errUserExists
		default:
			return unexpectedStatus(resp)
		}

		if loc := strings.TrimRight(resp.Header.Get("Location"), "/"); loc != "" {
			id = loc[strings.LastIndex(loc, "/")+1:]
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	return k.FindUserID(ctx, u.Username)
}

// FindUserID looks a realm user up by exact username.
func (k *Keycloak) FindUserID(ctx context.Context, username string) (string, error) {
	var id string
	err := k.call(ctx, "find_user", func(ctx context.Context) error {
		q := url.Values{"username": {username}, "exact": {"true"}}
		resp, err := k.doAdmin(ctx, http.MethodGet, "/users?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		defer drain(resp)
		if resp.StatusCode != http.StatusOK {
			return unexpectedStatus(resp)
		}

		var users []struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
			return fmt.Errorf("%w: decode users: %v", ErrUpstream, err)
		}
		if len(users) == 0 || users[0].ID == "" {
			return ErrSubjectNotFound
		}
		id = users[0].ID
		return nil
	})
	return id, err
}

// DeleteUser removes a realm user. A missing user is not an error.
func (k *Keycloak) DeleteUser(ctx context.Context, id string) error {
	return k.call(ctx, "delete_user", func(ctx context.Context) error {
		resp, err := k.doAdmin(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil)
		if err != nil {
			return err
		}
		defer drain(resp)
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return unexpectedStatus(resp)
	})
}

// AssignRealmRole fetches the named realm role and maps it to the user.
func (k *Keycloak) AssignRealmRole(ctx context.Context, userID, role string) error {
	return k.call(ctx, "assign_role", func(ctx context.Context) error {
		resp, err := k.doAdmin(ctx, http.MethodGet, "/roles/"+url.PathEscape(role), nil)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			defer drain(resp)
			return fmt.Errorf("fetch role %q: %w", role, unexpectedStatus(resp))
		}
		var rep json.RawMessage
		err = json.NewDecoder(resp.Body).Decode(&rep)
		drain(resp)
		if err != nil {
			return fmt.Errorf("%w: decode role: %v", ErrUpstream, err)
		}

		resp, err = k.doAdmin(ctx, http.MethodPost,
			"/users/"+url.PathEscape(userID)+"/role-mappings/realm", []json.RawMessage{rep})
		if err != nil {
			return err
		}
		defer drain(resp)
		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
			return fmt.Errorf("assign role %q: %w", role, unexpectedStatus(resp))
		}
		return nil
	})
}

// PasswordGrant exchanges user credentials for tokens using the application
// client and returns the provider's JSON unchanged.
func (k *Keycloak) PasswordGrant(ctx context.Context, username, password string) (json.RawMessage, error) {
	var out json.RawMessage
	err := k.call(ctx, "signin", func(ctx context.Context) error {
		form := url.Values{
			"grant_type":    {"password"},
			"client_id":     {k.cfg.AppClientID},
			"client_secret": {k.cfg.AppClientSecret},
			"username":      {username},
			"password":      {password},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.tokenEndpoint(), strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := k.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		defer drain(resp)

		switch {
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
			return ErrInvalidCredentials
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return unexpectedStatus(resp)
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("%w: decode token: %v", ErrUpstream, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
