package extractor

import "errors"

// Engine failures.
var (
	ErrEngine        = errors.New("pose engine failed")
	ErrEngineOutput  = errors.New("pose engine output invalid")
	ErrInvalidSkip   = errors.New("frame skip must be at least 1")
	ErrNoFrameSource = errors.New("no frame count or fps available")
)
