package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// ErrInvalidReference is returned when a write points at a missing row,
// such as a branch outside the user's school.
var ErrInvalidReference = errors.New("invalid reference")

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return ErrConflict
	case pqForeignKeyViolation:
		return ErrInvalidReference
	}
	return err
}
