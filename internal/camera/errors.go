package camera

import "errors"

// ErrInvalidOptions is returned by New when required collaborators are missing
// or the geometry is unusable.
var ErrInvalidOptions = errors.New("camera: invalid options")
