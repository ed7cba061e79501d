// Package redis implements the store.CredentialStore interface on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/avolkov/taskhub-api/internal/config"
	"github.com/avolkov/taskhub-api/internal/store"
)

// CredentialStore is a Redis-backed key/value store with per-key TTL.
// It serves as the session revocation blacklist and as the recovery
// token -> user mapping, shared across all service instances.
type CredentialStore struct {
	client  *goredis.Client
	timeout time.Duration
}

// NewCredentialStore creates a credential store from the given
// configuration. The operation timeout bounds every call; a timeout
// surfaces as the retryable store.ErrUnavailable.
func NewCredentialStore(cfg config.RedisConfig) *CredentialStore {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &CredentialStore{
		client:  client,
		timeout: time.Duration(cfg.OperationTimeoutSeconds) * time.Second,
	}
}

// NewCredentialStoreWithClient wraps an existing client. Used by tests to
// point the store at an in-process server.
func NewCredentialStoreWithClient(client *goredis.Client, timeout time.Duration) *CredentialStore {
	return &CredentialStore{client: client, timeout: timeout}
}

var _ store.CredentialStore = (*CredentialStore)(nil)

// Set implements store.CredentialStore.Set
func (s *CredentialStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set credential key: %w", mapError(err))
	}
	return nil
}

// Get implements store.CredentialStore.Get
func (s *CredentialStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("failed to get credential key: %w", mapError(err))
	}
	return value, nil
}

// GetDel implements store.CredentialStore.GetDel using redis GETDEL, so
// the read and the delete are one atomic server-side operation. Two
// concurrent redemptions of the same recovery token cannot both observe
// the key.
func (s *CredentialStore) GetDel(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("failed to get-del credential key: %w", mapError(err))
	}
	return value, nil
}

// Delete implements store.CredentialStore.Delete
func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete credential key: %w", mapError(err))
	}
	return nil
}

// Close releases the underlying client.
func (s *CredentialStore) Close() error {
	return s.client.Close()
}

// mapError translates client failures into the store taxonomy. Timeouts
// and network-level failures such as a refused connection become the
// retryable ErrUnavailable; everything else passes through.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.ErrUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return store.ErrUnavailable
	}

	return err
}
