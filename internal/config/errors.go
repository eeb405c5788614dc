package config

import "errors"

var (
	// ErrInvalidConfig marks values that parse but cannot run the service.
	ErrInvalidConfig = errors.New("invalid physiopulse configuration")
	// ErrLoadConfig marks an unreadable file or environment layer.
	ErrLoadConfig = errors.New("cannot load physiopulse configuration")
)
