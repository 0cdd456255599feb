// Package counter allocates unique monotonic IDs per named sequence.
//
// Each collection that feeds the vector store owns one sequence; the values
// become numeric point IDs, so they must never repeat and never race. The
// increment happens in a single SQL statement — the storage engine, not
// application code, provides the atomicity.
package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrStorageUnavailable is returned when the backing store cannot be
// reached. The service performs no retries; callers decide retry policy.
var ErrStorageUnavailable = errors.New("counter storage unavailable")

// ErrInvalidName is returned for an empty sequence name.
var ErrInvalidName = errors.New("sequence name cannot be empty")

// Service allocates strictly increasing integer IDs per named sequence.
type Service struct {
	db *sql.DB
}

// NewService creates a counter service backed by the given database.
func NewService(db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Service{db: db}, nil
}

// Next atomically increments and returns the value for name, creating the
// record with value 1 if absent. Concurrent callers never receive the same
// value: the upsert-and-return is one statement executed inside SQLite.
func (s *Service) Next(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, ErrInvalidName
	}

	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("%w: incrementing %q: %v", ErrStorageUnavailable, name, err)
	}
	return value, nil
}

// Current returns the last allocated value for name without incrementing,
// or 0 if the sequence does not exist yet.
func (s *Service) Current(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, ErrInvalidName
	}

	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reading %q: %v", ErrStorageUnavailable, name, err)
	}
	return value, nil
}
