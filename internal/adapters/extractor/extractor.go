// Package extractor provides pose engines that turn a video into landmark frames.
package extractor

import (
	"context"
	"sync"

	"github.com/okian/physiopulse/internal/domain/landmark"
)

// Extractor produces the landmark frames of a video, sampling every
// frameSkip-th frame. Implementations are safe for sequential reuse;
// wrap with Serialize before sharing one across goroutines.
type Extractor interface {
	Extract(ctx context.Context, videoPath string, frameSkip int) ([]landmark.Frame, error)
}

// Func adapts a function to Extractor.
type Func func(ctx context.Context, videoPath string, frameSkip int) ([]landmark.Frame, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, videoPath string, frameSkip int) ([]landmark.Frame, error) {
	return f(ctx, videoPath, frameSkip)
}

type serialized struct {
	mu    sync.Mutex
	inner Extractor
}

// Serialize guards e with a mutex so concurrent callers take turns.
func Serialize(e Extractor) Extractor {
	return &serialized{inner: e}
}

func (s *serialized) Extract(ctx context.Context, videoPath string, frameSkip int) ([]landmark.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.Extract(ctx, videoPath, frameSkip)
}

// Static returns the same frames for every video. Used in tests and demos.
type Static struct {
	Frames []landmark.Frame
	Err    error
}

// Extract returns a copy of the configured frames.
func (s Static) Extract(ctx context.Context, _ string, _ int) ([]landmark.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]landmark.Frame, len(s.Frames))
	copy(out, s.Frames)
	return out, nil
}
