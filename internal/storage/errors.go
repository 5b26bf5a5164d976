package storage

import "errors"

// ErrNotFound is returned when a row is missing or not visible to the caller.
var ErrNotFound = errors.New("storage: not found")
