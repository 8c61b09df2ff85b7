package engine

import "errors"

// ErrPathInvalid is returned when the source or destination cannot be used.
var ErrPathInvalid = errors.New("invalid path")
