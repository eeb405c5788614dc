package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound        = errors.New("analysis not found")
	ErrInvalidLimit    = errors.New("invalid list window")
	ErrInvalidAnalysis = errors.New("analysis id is required")
	ErrUnknownDialect  = errors.New("unknown sql dialect")
)
