// Package store is the PostgreSQL persistence layer for the pipeline.
// All queries go through a single Store so transactions and error mapping
// stay in one place.
package store

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"drumbeat/pkg/logging"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate")
)

// Store wraps the database handle with pipeline queries.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New creates a Store.
func New(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
