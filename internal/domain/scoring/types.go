package scoring

import (
	"encoding/json"
	"fmt"

	"github.com/okian/physiopulse/internal/domain/exercise"
)

// JointScore is the score of one joint in one frame.
type JointScore struct {
	Angle      float64       `json:"angle"`
	Score      int           `json:"score"`
	Feedback   string        `json:"feedback"`
	Confidence float64       `json:"confidence"`
	Tier       exercise.Tier `json:"-"`
}

// FrameScore holds the joint scores of one frame keyed by joint name.
// Only scored joints are present.
type FrameScore struct {
	Frame        int
	TimestampSec float64
	Joints       map[string]JointScore
}

const (
	keyFrame     = "frame"
	keyTimestamp = "timestamp_sec"
)

// MarshalJSON writes joints as top-level keys next to frame and timestamp_sec.
func (f FrameScore) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(f.Joints)+2)
	for name, js := range f.Joints {
		m[name] = js
	}
	m[keyFrame] = f.Frame
	m[keyTimestamp] = f.TimestampSec
	return json.Marshal(m)
}

// UnmarshalJSON reverses MarshalJSON.
func (f *FrameScore) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := FrameScore{Joints: make(map[string]JointScore, len(raw))}
	for k, v := range raw {
		switch k {
		case keyFrame:
			if err := json.Unmarshal(v, &out.Frame); err != nil {
				return fmt.Errorf("frame: %w", err)
			}
		case keyTimestamp:
			if err := json.Unmarshal(v, &out.TimestampSec); err != nil {
				return fmt.Errorf("timestamp_sec: %w", err)
			}
		default:
			var js JointScore
			if err := json.Unmarshal(v, &js); err != nil {
				return fmt.Errorf("joint %s: %w", k, err)
			}
			out.Joints[k] = js
		}
	}
	*f = out
	return nil
}
