package store

import (
	"context"
	"time"
)

// CredentialStore is a shared key/value store with per-key TTL. It backs
// the session revocation blacklist and the recovery token -> user mapping.
// Implementations must provide per-key atomicity; GetDel in particular must
// combine the read and the delete into one operation so that a recovery
// token can be redeemed exactly once even under concurrent requests.
//
// Every method returns ErrUnavailable (possibly wrapped) on timeout or
// backend failure, never a silent success.
type CredentialStore interface {
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value stored under key.
	// Returns ErrNotFound if the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)

	// GetDel atomically returns the value stored under key and deletes the
	// key. Returns ErrNotFound if the key is absent or expired.
	GetDel(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
