package rbac

import "errors"

var (
	ErrNotFound      = errors.New("rbac: role not found")
	ErrDuplicateRole = errors.New("rbac: role already exists")
	ErrImmutable     = errors.New("rbac: built-in role is immutable")
	ErrInvalidInput  = errors.New("rbac: invalid input")
)
