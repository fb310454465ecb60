package utils

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsDuplicateKeyErr reports whether err is a Postgres unique violation (23505).
func IsDuplicateKeyErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsTransientDBErr reports whether err is worth retrying: connection failures
// (class 08), serialization failures / deadlocks (class 40), insufficient
// resources (class 53). Constraint violations (class 23) are permanent and
// must never be retried.
func IsTransientDBErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		return strings.HasPrefix(code, "08") ||
			strings.HasPrefix(code, "40") ||
			strings.HasPrefix(code, "53")
	}
	// Driver-level connection drops surface as plain errors.
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused")
}
