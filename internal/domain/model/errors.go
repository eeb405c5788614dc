package model

import "errors"

// ErrUnknownArtifact is returned for artifact kinds other than landmarks, scores and summary.
var ErrUnknownArtifact = errors.New("unknown artifact kind")
