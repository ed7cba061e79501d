// Package postgres implements the store interfaces on PostgreSQL using the
// pgx driver in database/sql mode.
package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avolkov/taskhub-api/internal/store"
)

// PostgreSQL error codes
const uniqueViolationCode = "23505"

// isUniqueViolation checks if the given error is a PostgreSQL unique
// constraint violation, such as a duplicate email or token digest.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// mapError translates driver-level failures into the store taxonomy.
// Timeouts and connectivity failures become the retryable ErrUnavailable;
// everything else passes through for the caller to wrap.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return store.ErrUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return store.ErrUnavailable
	}

	return err
}
