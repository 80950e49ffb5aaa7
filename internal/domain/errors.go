package domain

import "errors"

// ErrNotFound is returned by storage and registry lookups that match no row.
var ErrNotFound = errors.New("not found")
