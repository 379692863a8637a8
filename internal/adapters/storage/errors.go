package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey se devuelve al reinsertar un trade: la tabla es append-only.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")
)
