package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is reported to clients alongside every access token.
const TokenType = "bearer"

// Claims is the payload of an access token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsStaff  bool   `json:"is_staff"`
	jwt.RegisteredClaims
}

// TokenSubject identifies the account a token is issued for.
type TokenSubject struct {
	UserID   int64
	Username string
	Role     string
	IsStaff  bool
}

// IssueToken builds claims valid from now for ttl and signs them with HS256.
// Timestamps are truncated to whole seconds, so exp-iat equals ttl exactly.
func IssueToken(subject TokenSubject, now time.Time, ttl time.Duration, secret []byte) (string, error) {
	issuedAt := now.Truncate(time.Second)
	claims := &Claims{
		UserID:   subject.UserID,
		Username: subject.Username,
		Role:     subject.Role,
		IsStaff:  subject.IsStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an HS256 token against secret and returns its claims.
// Tokens signed with any other method, expired tokens and tokens without a
// subject are rejected.
func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("token is invalid or claims could not be parsed")
	}
	if claims.UserID == 0 || claims.Username == "" {
		return nil, errors.New("token payload is missing the user")
	}
	if claims.Role == "" {
		claims.Role = DefaultRole
	}
	return claims, nil
}

// TokenIssuer signs access tokens with the process-wide secret and lifetime.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an issuer; a non-positive ttl falls back to DefaultTokenTTLSeconds.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTLSeconds * time.Second
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for subject.
func (i *TokenIssuer) Issue(subject TokenSubject) (string, error) {
	return IssueToken(subject, i.now(), i.ttl, i.secret)
}

// TTL is the lifetime of tokens produced by Issue.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Parse verifies a token produced by this issuer.
func (i *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	return ParseToken(tokenString, i.secret)
}
