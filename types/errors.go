package types

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrPermission      = errors.New("permission denied")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrTimeout         = errors.New("timeout")
	ErrNotADirectory   = errors.New("not a directory")

	// ErrIncompleteMove is returned when a move copied the data but could
	// not delete the source. Both locations may hold the data.
	ErrIncompleteMove = errors.New("move incomplete, source was not removed")
)
