package singleflight

import "errors"

// ErrInProgress is returned by Occupy when another call with the same key
// has not settled yet.
var ErrInProgress = errors.New("singleflight: previous request has not completed")
