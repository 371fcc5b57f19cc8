package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic version check fails.
	ErrConflict = errors.New("version conflict")
	// ErrAlreadyCommitted is returned when a conversation already carries a
	// committed order.
	ErrAlreadyCommitted = errors.New("order already committed")
)
