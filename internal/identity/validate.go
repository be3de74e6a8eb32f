package identity

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@\-]+$`)
)

func validateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// validateUsername accepts the characters Keycloak allows in usernames.
func validateUsername(username string) (bool, string) {
	if len(username) < 3 {
		return false, "username must be at least 3 characters long"
	}
	if len(username) > 150 {
		return false, "username must be at most 150 characters long"
	}
	if !usernameRegex.MatchString(username) {
		return false, "username can only contain letters, numbers and _ . @ -"
	}
	return true, ""
}

// SignupRequest is the signup payload.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// Normalize trims whitespace and checks every field, returning an error
// wrapping ErrInvalidInput.
func (r *SignupRequest) Normalize() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	r.FullName = strings.TrimSpace(r.FullName)

	if ok, msg := validateUsername(r.Username); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	}
	if !validateEmail(r.Email) {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return nil
}

// SigninRequest is the signin payload.
type SigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *SigninRequest) Normalize() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" || r.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	return nil
}
