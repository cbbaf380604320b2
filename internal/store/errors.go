package store

import "errors"

// ErrNotFound is returned when a lookup references a row that does not
// exist (e.g. a delivery for an unknown alert, a cancel of an unknown paper
// order).
var ErrNotFound = errors.New("store: not found")

// ErrInvalidTransition is returned when an alert state transition is not
// in the allowed set; the row is left untouched.
var ErrInvalidTransition = errors.New("store: invalid state transition")
