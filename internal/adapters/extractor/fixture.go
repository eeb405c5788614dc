package extractor

import (
	"context"
	"math"

	"github.com/okian/physiopulse/internal/adapters/media"
	"github.com/okian/physiopulse/internal/domain/landmark"
)

const (
	defaultFixtureFPS    = 30.0
	defaultFixtureFrames = 150
)

// FixtureOption applies a configuration option to the Fixture.
type FixtureOption func(*Fixture)

// WithFPS sets the frame rate used when the video is not probed.
func WithFPS(fps float64) FixtureOption {
	return func(f *Fixture) {
		if fps > 0 {
			f.fps = fps
		}
	}
}

// WithFrames sets the decoded frame count used when the video is not probed.
func WithFrames(n int) FixtureOption {
	return func(f *Fixture) {
		if n >= 0 {
			f.frames = n
		}
	}
}

// WithProber reads frame count and rate from the video itself.
func WithProber(p media.Prober) FixtureOption {
	return func(f *Fixture) {
		f.prober = p
	}
}

// Fixture synthesises a smoothly moving, fully detected body for every
// sampled frame. Output depends only on frame index, so runs are reproducible.
type Fixture struct {
	fps    float64
	frames int
	prober media.Prober
}

// NewFixture creates a Fixture describing a 5 second 30fps clip by default.
func NewFixture(opts ...FixtureOption) *Fixture {
	f := &Fixture{fps: defaultFixtureFPS, frames: defaultFixtureFrames}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Extract emits every frameSkip-th frame of the clip, 1-based.
func (f *Fixture) Extract(ctx context.Context, videoPath string, frameSkip int) ([]landmark.Frame, error) {
	if frameSkip < 1 {
		return nil, ErrInvalidSkip
	}
	fps, total := f.fps, f.frames
	if f.prober != nil {
		info, err := f.prober.Probe(ctx, videoPath)
		if err != nil {
			return nil, err
		}
		fps, total = info.FPS, info.FrameCount
	}
	if fps <= 0 {
		return nil, ErrNoFrameSource
	}

	out := make([]landmark.Frame, 0, total/frameSkip)
	for frame := frameSkip; frame <= total; frame += frameSkip {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, SyntheticFrame(frame, fps))
	}
	return out, nil
}

// SyntheticFrame returns the fixture pose for one frame index.
func SyntheticFrame(frame int, fps float64) landmark.Frame {
	lms := make([]landmark.Landmark, landmark.Count)
	fi := float64(frame)
	for id := range lms {
		name, _ := landmark.Name(id)
		phase := fi*0.1 + float64(id)*0.2
		lms[id] = landmark.Landmark{
			ID:         id,
			Name:       name,
			X:          clamp01(0.5 + 0.1*math.Sin(phase)),
			Y:          clamp01(0.5 + 0.1*math.Cos(phase)),
			Visibility: clamp01(0.8 + 0.2*math.Sin(fi*0.05+float64(id)*0.1)),
		}
	}
	return landmark.Frame{Index: frame, TimestampSec: landmark.Timestamp(frame, fps), Landmarks: lms}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
