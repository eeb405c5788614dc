package media

import "errors"

// Validation and probe failures.
var (
	ErrNotFound          = errors.New("video not found")
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrTooLarge          = errors.New("video too large")
	ErrEmpty             = errors.New("video file is empty")
	ErrProbe             = errors.New("video probe failed")
	ErrNoVideoStream     = errors.New("no video stream")
)
