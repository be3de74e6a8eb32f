// Package identity delegates account creation and sign-in to a Keycloak
// realm and mirrors a minimal user record locally.
package identity

import "errors"

var (
	// ErrInvalidInput wraps signup or signin payload problems.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUsernameTaken means the username exists locally or in the realm.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrInvalidCredentials means the provider rejected a password grant.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUpstream wraps transport failures and unexpected provider answers.
	ErrUpstream = errors.New("identity provider error")

	// ErrSubjectNotFound means a created realm user could not be found again.
	ErrSubjectNotFound = errors.New("could not obtain identity provider user id")

	errUserExists = errors.New("user exists in identity provider")
)
