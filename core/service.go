package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// tokenIssuer is the part of TokenIssuer the auth service depends on.
type tokenIssuer interface {
	Issue(subject TokenSubject) (string, error)
	TTL() time.Duration
}

// RepositoryAuthService authenticates against a UserRepository and issues access tokens.
type RepositoryAuthService struct {
	users   UserRepository
	tokens  tokenIssuer
	logger  logrus.FieldLogger
	metrics *Metrics

	// dummyHash is verified when the username is unknown so that both failure
	// paths cost one key derivation.
	dummyHash string
}

// NewRepositoryAuthService builds the service. hashIterations should match the work
// factor of stored hashes so the unknown-user path takes comparable time.
func NewRepositoryAuthService(users UserRepository, tokens tokenIssuer, logger logrus.FieldLogger, metrics *Metrics, hashIterations int) (*RepositoryAuthService, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	dummy, err := MakePassword(salt, salt, hashIterations)
	if err != nil {
		return nil, fmt.Errorf("failed to build dummy hash: %w", err)
	}
	return &RepositoryAuthService{
		users:     users,
		tokens:    tokens,
		logger:    logger,
		metrics:   metrics,
		dummyHash: dummy,
	}, nil
}

// Authenticate verifies username/password and returns a signed access token.
func (s *RepositoryAuthService) Authenticate(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" || password == "" {
		s.metrics.LoginAttempt("invalid_input")
		return LoginResult{}, ErrInvalidInput
	}

	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		CheckPassword(password, s.dummyHash)
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.WithError(err).WithField("username", username).Error("credential lookup failed")
		}
		s.metrics.LoginAttempt("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	h, err := ParsePasswordHash(u.PasswordHash)
	if err != nil {
		// Unusable or unknown stored hashes still cost one verification.
		CheckPassword(password, s.dummyHash)
		s.logger.WithField("username", username).Info("login rejected: unusable password hash")
		s.metrics.LoginAttempt("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}
	if !h.Matches(password) {
		s.logger.WithField("username", username).Info("login rejected: password mismatch")
		s.metrics.LoginAttempt("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	role := u.Role
	if role == "" {
		role = DefaultRole
	}

	token, err := s.tokens.Issue(TokenSubject{
		UserID:   u.ID,
		Username: u.Username,
		Role:     role,
		IsStaff:  u.IsStaff,
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", u.ID).Error("token issuance failed")
		s.metrics.LoginAttempt("internal_error")
		return LoginResult{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	s.metrics.LoginAttempt("success")
	return LoginResult{
		AccessToken: token,
		ExpiresIn:   int(s.tokens.TTL() / time.Second),
		TokenType:   TokenType,
	}, nil
}
