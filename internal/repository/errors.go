package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrNoParticipants means a task has nobody to rotate through.
var ErrNoParticipants = errors.New("task has no participants")

var (
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidName     = errors.New("name must contain at least one letter")
	ErrInvalidInterval = errors.New("interval must be at least one day")
)

// UnknownUserError names the first participant that could not be resolved.
type UnknownUserError struct {
	Name string
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("no user named %q", e.Name)
}

// SchemaMismatchError is returned by NewDB when the database was written by an
// incompatible version.
type SchemaMismatchError struct {
	Found string
	Want  string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema version %q is not supported (want %q); upgrade is not implemented", e.Found, e.Want)
}

// TxError wraps a failed store transaction. It is transient: the caller may
// retry the whole operation.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *TxError) Unwrap() error { return e.Err }

// transact runs fn in a transaction. Domain errors pass through unchanged,
// anything else is reported as *TxError.
func transact(ctx context.Context, db *gorm.DB, op string, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(fn)
	if err == nil || isDomainError(err) {
		return err
	}
	return &TxError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	var unknown *UnknownUserError
	return errors.Is(err, ErrNoParticipants) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserExists) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &unknown)
}
