package auth

import (
	"context"
	"time"
)

// Operator is the person driving the ledger in an authenticated session.
type Operator struct {
	Name     string
	LoggedIn time.Time
}

// Authenticator verifies operator credentials.
// Implementations can be swapped (shared password, per-operator passwords, OAuth)
// without changing the service layer.
type Authenticator interface {
	// Authenticate verifies the credential and returns the operator if successful.
	Authenticate(ctx context.Context, operator, credential string) (*Operator, error)
}
