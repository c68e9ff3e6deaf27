package repository

import "errors"

var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional update matched no row because
	// another writer got there first. Callers should re-read and retry.
	ErrConflict = errors.New("concurrent update conflict")
)
