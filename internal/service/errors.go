package service

import "errors"

var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("user already exists")
	ErrNotFound     = errors.New("user does not exist")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means a valid token belongs to an inactive account.
	ErrForbidden = errors.New("account inactive")
	ErrInternal  = errors.New("internal error")
)
