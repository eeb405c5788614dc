// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"

	"github.com/okian/physiopulse/internal/domain/exercise"
	"github.com/okian/physiopulse/internal/domain/summary"
)

// Status is the lifecycle state of an analysis.
type Status string

// Analysis states. Transitions only move forward:
// pending -> processing -> completed | failed.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ArtifactKind names one of the three files written per analysis.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactLandmarks ArtifactKind = "landmarks"
	ArtifactScores    ArtifactKind = "scores"
	ArtifactSummary   ArtifactKind = "summary"
)

// ArtifactKinds lists the kinds in write order.
var ArtifactKinds = []ArtifactKind{ArtifactLandmarks, ArtifactScores, ArtifactSummary}

// ParseArtifactKind validates a user supplied kind.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch k := ArtifactKind(s); k {
	case ArtifactLandmarks, ArtifactScores, ArtifactSummary:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownArtifact, s)
}

// Files references the artifacts of one analysis.
type Files struct {
	Landmarks string `json:"landmarks_file"`
	Scores    string `json:"scores_file"`
	Summary   string `json:"summary_file"`
}

// Path returns the file of kind k, or "" when it was never written.
func (f Files) Path(k ArtifactKind) string {
	switch k {
	case ArtifactLandmarks:
		return f.Landmarks
	case ArtifactScores:
		return f.Scores
	case ArtifactSummary:
		return f.Summary
	}
	return ""
}

// Analysis is one pipeline run as seen by callers and stores.
type Analysis struct {
	ID             string           `json:"analysis_id"`
	Status         Status           `json:"status"`
	ExerciseType   exercise.Type    `json:"exercise_type"`
	PatientID      string           `json:"patient_id,omitempty"`
	SessionID      string           `json:"session_id,omitempty"`
	VideoPath      string           `json:"video_path"`
	ProcessingTime float64          `json:"processing_time"`
	Files          Files            `json:"files"`
	Summary        *summary.Summary `json:"summary,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	PatientID string
}

// Match reports whether a satisfies the filter.
func (f Filter) Match(a Analysis) bool {
	return f.PatientID == "" || f.PatientID == a.PatientID
}
