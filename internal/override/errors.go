package override

import "errors"

// Domain errors for the override package.
var (
	// ErrParamNotFound is returned when a key has no stored value.
	ErrParamNotFound = errors.New("override: param not found")

	// ErrInvalidKey is returned for an empty, over-long or non-identifier key.
	ErrInvalidKey = errors.New("override: invalid key")
)
