package domain

import "errors"

// Sentinel errors shared across storage, cache and engine layers.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)
