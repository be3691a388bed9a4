package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the merchant has no branding configured. Not retried.
	ErrNotFound = errors.New("branding_not_found")
	// ErrUnavailable means the configuration store could not be reached.
	// Callers may retry.
	ErrUnavailable = errors.New("branding_unavailable")
)

// Resolver looks up a merchant's current branding by merchant identifier.
// Read-only; it never mutates branding.
type Resolver interface {
	Resolve(ctx context.Context, merchantID string) (*MerchantBranding, error)
}
