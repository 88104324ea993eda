package model

import "errors"

// ErrNotFound is returned by stores when no row matches the lookup.
var ErrNotFound = errors.New("not found")
