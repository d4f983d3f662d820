package repository

import "errors"

var (
	// ErrNotFound indicates no user matched the lookup.
	ErrNotFound = errors.New("repository: user not found")
	// ErrDuplicate indicates a username or email uniqueness violation.
	ErrDuplicate = errors.New("repository: duplicate user")
)
