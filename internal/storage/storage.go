// Package storage holds the Postgres persistence layer. Each aggregate
// gets its own store interface so consumers only see the operations they
// need; all implementations share one sqlx pool.
package storage

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/sevigo/integrator/internal/core"
)

// pqUniqueViolation is the Postgres error code for unique constraint hits.
const pqUniqueViolation = "23505"

// translateErr maps driver-level errors onto the domain sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return core.ErrAlreadyExists
	}
	return err
}
