package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid operator or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// SharedPasswordAuthenticator checks every operator against one bcrypt hash.
// The ledger is run by a household, so the password is shared and the operator
// name only identifies who finalized or changed something.
type SharedPasswordAuthenticator struct {
	hash []byte
}

// NewSharedPasswordAuthenticator creates an authenticator from a bcrypt hash.
func NewSharedPasswordAuthenticator(passwordHash string) (*SharedPasswordAuthenticator, error) {
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("invalid password hash: %w", err)
	}
	return &SharedPasswordAuthenticator{hash: []byte(passwordHash)}, nil
}

// HashPassword returns the bcrypt hash to put into the configuration.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", ErrWeakPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Authenticate verifies the shared password.
func (a *SharedPasswordAuthenticator) Authenticate(_ context.Context, operator, credential string) (*Operator, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &Operator{Name: operator, LoggedIn: time.Now()}, nil
}
