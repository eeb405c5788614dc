package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted          = errors.New("service not started")
	ErrBusy                = errors.New("analysis queue is full")
	ErrArtifactUnavailable = errors.New("artifact unavailable")
)
