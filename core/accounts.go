package core

import (
	"context"
	"fmt"
	"strings"
)

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// AccountCreator registers new accounts with pbkdf2_sha256 password hashes.
type AccountCreator struct {
	users      UserRepository
	roles      RoleSet
	iterations int
}

func NewAccountCreator(users UserRepository, roles RoleSet, iterations int) *AccountCreator {
	return &AccountCreator{users: users, roles: roles, iterations: iterations}
}

// Create validates req and stores the account. Role defaults to CUSTOMER and the
// email to <username>@example.com.
func (a *AccountCreator) Create(ctx context.Context, req CreateUserRequest) (*UserSummary, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrInvalidInput
	}

	role := DefaultRole
	if strings.TrimSpace(req.Role) != "" {
		role = normalizeRole(req.Role)
	}
	if !a.roles.Contains(role) {
		return nil, ErrInvalidRole
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = username + "@example.com"
	}

	hash, err := HashPassword(req.Password, a.iterations)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := a.users.Create(ctx, NewUser{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}
	return &UserSummary{ID: id, Username: username, Role: role}, nil
}
