package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrEmptyPath = errors.New("store path must not be empty")
	ErrEmptyRSN  = errors.New("rsn must not be empty")
)
