package model

import (
	"time"

	"github.com/okian/physiopulse/internal/domain/exercise"
)

// Job is a queued request to analyze one video.
type Job struct {
	ID           string
	VideoPath    string
	OutputDir    string
	ExerciseType exercise.Type
	PatientID    string
	SessionID    string
	EnqueuedAt   time.Time
	// Upload marks VideoPath as a temporary copy to delete if the run fails.
	Upload bool
}
