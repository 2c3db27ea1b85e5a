package core

import (
	"context"
	"errors"
	"net/http"
)

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

var (
	// ErrInvalidInput is returned when required request fields are missing.
	ErrInvalidInput = errors.New("username and password required")
	// ErrInvalidCredentials is returned when the user is unknown, the lookup failed
	// or the password is wrong. The three cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInternal is returned when a token cannot be produced.
	ErrInternal = errors.New("internal error")

	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrInvalidRole   = errors.New("invalid role")
)

// AuthService defines authentication behaviour.
type AuthService interface {
	Authenticate(ctx context.Context, username, password string) (LoginResult, error)
}

// errorStatus maps sentinel errors to HTTP status and the detail shown to clients.
var errorStatus = []struct {
	err    error
	status int
	detail string
}{
	{ErrInvalidInput, http.StatusBadRequest, "username and password required"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
	{ErrUserNotFound, http.StatusNotFound, "User not found"},
	{ErrUsernameTaken, http.StatusBadRequest, "Username already exists"},
	{ErrInvalidRole, http.StatusBadRequest, "Invalid role. Must be one of: ADMIN, SHOPKEEPER, CUSTOMER"},
	{ErrInternal, http.StatusInternalServerError, "Token creation failed"},
}

// statusForError returns the response for err; unknown errors become a generic 500
// so store error text never reaches the client.
func statusForError(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.detail
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}
