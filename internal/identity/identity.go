// Package identity abstracts the account provider. The CRM core only
// needs three operations; everything else about sessions lives in the
// auth package.
package identity

import (
	"context"
	"time"
)

// Account is the provider-side identity record.
type Account struct {
	ID        string
	Email     string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Provider creates and removes accounts. Implementations must make
// DeleteUser safe to call as a compensation step: deleting an account
// that was just created has to succeed even if nothing else references
// it yet.
type Provider interface {
	CreateUser(ctx context.Context, email, password string, metadata map[string]string) (string, error)
	DeleteUser(ctx context.Context, userID string) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
}
