package landmark

import "errors"

// Contract violations reported by Validate.
var (
	ErrLandmarkCount   = errors.New("landmark set incomplete")
	ErrUnknownLandmark = errors.New("unknown landmark")
	ErrLandmarkValue   = errors.New("landmark value out of range")
	ErrFrameOrder      = errors.New("frames out of order")
)
