package repository

import (
	"errors"

	"github.com/google/uuid"
)

// Not-found lookups return pgx.ErrNoRows from every implementation.
var (
	// ErrVersionConflict signals a stale optimistic-concurrency version.
	ErrVersionConflict = errors.New("record was modified concurrently")
	// ErrDuplicateEmail signals a unique email violation.
	ErrDuplicateEmail = errors.New("email already registered")
)

const uniqueViolation = "23505"

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
