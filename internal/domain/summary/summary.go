// Package summary reduces per-frame scores into session statistics.
package summary

import (
	"github.com/okian/physiopulse/internal/domain/geometry"
	"github.com/okian/physiopulse/internal/domain/landmark"
	"github.com/okian/physiopulse/internal/domain/scoring"
)

// Summary is the session level aggregate of one analysis.
type Summary struct {
	AverageScore     float64 `json:"average_score"`
	BestScore        int     `json:"best_score"`
	WorstScore       int     `json:"worst_score"`
	TotalFrames      int     `json:"total_frames"`
	FramesWithPose   int     `json:"frames_with_pose"`
	DetectionRate    float64 `json:"detection_rate"`
	ExerciseDuration float64 `json:"exercise_duration"`
}

// Summarize aggregates scores over the landmark frames they came from.
// Duration spans the landmark frames, so motion that produced no scorable
// joint still counts. Empty input yields a zero Summary.
func Summarize(scores []scoring.FrameScore, frames []landmark.Frame) Summary {
	s := Summary{
		TotalFrames:    len(frames),
		FramesWithPose: len(scores),
	}
	if s.TotalFrames > 0 {
		s.DetectionRate = float64(s.FramesWithPose) / float64(s.TotalFrames)
		s.ExerciseDuration = geometry.Round2(frames[len(frames)-1].TimestampSec - frames[0].TimestampSec)
	}

	var (
		sum   int
		count int
	)
	for _, fs := range scores {
		for _, js := range fs.Joints {
			if count == 0 || js.Score > s.BestScore {
				s.BestScore = js.Score
			}
			if count == 0 || js.Score < s.WorstScore {
				s.WorstScore = js.Score
			}
			sum += js.Score
			count++
		}
	}
	if count > 0 {
		s.AverageScore = float64(sum) / float64(count)
	}
	return s
}
