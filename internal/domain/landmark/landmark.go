// Package landmark defines the per-frame body landmark contract produced by
// pose engines and consumed by scoring.
package landmark

import (
	"fmt"
	"math"

	"github.com/okian/physiopulse/internal/domain/geometry"
)

// Count is the size of the landmark vocabulary.
const Count = 33

// names maps landmark ids to their semantic names.
var names = [Count]string{
	"nose",
	"left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear",
	"mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_pinky", "right_pinky",
	"left_index", "right_index",
	"left_thumb", "right_thumb",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
	"left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

var ids = func() map[string]int {
	m := make(map[string]int, Count)
	for i, n := range names {
		m[n] = i
	}
	return m
}()

// Landmark is one tracked body point.
type Landmark struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Point returns the planar position of the landmark.
func (l Landmark) Point() geometry.Point {
	return geometry.Point{X: l.X, Y: l.Y}
}

// Frame is one sampled video frame with its full landmark set.
type Frame struct {
	Index        int        `json:"frame"`
	TimestampSec float64    `json:"timestamp_sec"`
	Landmarks    []Landmark `json:"landmarks"`
}

// ByName indexes the frame's landmarks by their vocabulary name. The name is
// resolved from the id so a mislabelled record cannot shadow another point.
func (f Frame) ByName() map[string]Landmark {
	m := make(map[string]Landmark, len(f.Landmarks))
	for _, l := range f.Landmarks {
		if n, ok := Name(l.ID); ok {
			m[n] = l
		}
	}
	return m
}

// Name returns the vocabulary name of id.
func Name(id int) (string, bool) {
	if id < 0 || id >= Count {
		return "", false
	}
	return names[id], true
}

// ID returns the vocabulary id of name.
func ID(name string) (int, bool) {
	id, ok := ids[name]
	return id, ok
}

// Names returns the vocabulary in id order.
func Names() []string {
	out := make([]string, Count)
	copy(out, names[:])
	return out
}

// Timestamp converts a 1-based frame index into seconds, rounded to 2 decimals.
func Timestamp(frame int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return geometry.Round2(float64(frame) / fps)
}

// Validate checks an engine result against the contract and returns the
// frames that carry landmarks. Frames with an empty landmark set are dropped.
func Validate(frames []Frame) ([]Frame, error) {
	out := make([]Frame, 0, len(frames))
	prev := 0
	for _, f := range frames {
		if len(f.Landmarks) == 0 {
			continue
		}
		if f.Index < 1 {
			return nil, fmt.Errorf("%w: frame index %d is not 1-based", ErrFrameOrder, f.Index)
		}
		if f.Index <= prev {
			return nil, fmt.Errorf("%w: frame %d follows frame %d", ErrFrameOrder, f.Index, prev)
		}
		if err := validateFrame(f); err != nil {
			return nil, err
		}
		prev = f.Index
		out = append(out, f)
	}
	return out, nil
}

func validateFrame(f Frame) error {
	if len(f.Landmarks) != Count {
		return fmt.Errorf("%w: frame %d has %d landmarks, want %d", ErrLandmarkCount, f.Index, len(f.Landmarks), Count)
	}
	if !isFinite(f.TimestampSec) || f.TimestampSec < 0 {
		return fmt.Errorf("%w: frame %d timestamp %v", ErrLandmarkValue, f.Index, f.TimestampSec)
	}
	var seen [Count]bool
	for _, l := range f.Landmarks {
		name, ok := Name(l.ID)
		if !ok {
			return fmt.Errorf("%w: frame %d id %d", ErrUnknownLandmark, f.Index, l.ID)
		}
		if l.Name != name {
			return fmt.Errorf("%w: frame %d id %d is named %q, want %q", ErrUnknownLandmark, f.Index, l.ID, l.Name, name)
		}
		if seen[l.ID] {
			return fmt.Errorf("%w: frame %d repeats id %d", ErrLandmarkCount, f.Index, l.ID)
		}
		seen[l.ID] = true

		if !unit(l.X) || !unit(l.Y) || !unit(l.Visibility) || !isFinite(l.Z) {
			return fmt.Errorf("%w: frame %d landmark %s", ErrLandmarkValue, f.Index, name)
		}
	}
	return nil
}

func unit(v float64) bool {
	return isFinite(v) && v >= 0 && v <= 1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
