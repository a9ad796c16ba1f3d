package model

import "errors"

// Error kinds. The transaction runner wraps every failure from a unit of
// work except ErrObjectAlreadyExists and ErrCancelled as ErrPersistence,
// preserving the original cause via %w.
var (
	ErrObjectAlreadyExists = errors.New("object already exists")
	ErrNoSuchObject = errors.New("referenced object does not exist")
	ErrLockUnavailable = errors.New("lock unavailable")
	ErrPersistence = errors.New("persistence failure")
	ErrConfiguration = errors.New("invalid configuration")
	ErrCancelled = errors.New("operation cancelled")
)
