package domain

import "errors"

// ErrProfileNotFound is returned by profile stores for unknown users.
var ErrProfileNotFound = errors.New("profile not found")
