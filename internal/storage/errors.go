package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when creating a record at an address that
	// is already occupied.
	ErrDuplicateKey = errors.New("duplicate key: address already in use")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUndeclaredAccount is returned when a transaction touches an address
	// it did not declare up front.
	ErrUndeclaredAccount = errors.New("account not declared by transaction")

	// ErrConflict is returned when an optimistic transaction could not commit
	// within its retry budget.
	ErrConflict = errors.New("transaction conflict: retry budget exhausted")
)
