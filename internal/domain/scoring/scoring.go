// Package scoring turns landmark geometry into per-joint form scores.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/physiopulse/internal/domain/exercise"
	"github.com/okian/physiopulse/internal/domain/geometry"
	"github.com/okian/physiopulse/internal/domain/landmark"
	"github.com/okian/physiopulse/pkg/logger"
)

// Default tier values and confidence.
const (
	defaultPerfectScore          = 100
	defaultGoodScore             = 75
	defaultNeedsImprovementScore = 50
	defaultConfidence            = 1.0
)

// TierScores maps each tier to its numeric score.
type TierScores struct {
	Perfect          int
	Good             int
	NeedsImprovement int
}

// For returns the score of tier t.
func (s TierScores) For(t exercise.Tier) int {
	switch t {
	case exercise.Perfect:
		return s.Perfect
	case exercise.Good:
		return s.Good
	default:
		return s.NeedsImprovement
	}
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithTierScores overrides the tier values. Non-positive or unordered values are ignored.
func WithTierScores(perfect, good, needsImprovement int) Option {
	return func(s *Scorer) {
		if needsImprovement > 0 && good >= needsImprovement && perfect >= good {
			s.tiers = TierScores{Perfect: perfect, Good: good, NeedsImprovement: needsImprovement}
		}
	}
}

// WithVisibilityConfidence reports the lowest visibility of a joint's three
// landmarks as its confidence instead of the constant 1.0.
func WithVisibilityConfidence(enabled bool) Option {
	return func(s *Scorer) {
		s.visibilityConfidence = enabled
	}
}

// WithMinVisibility omits joints whose landmarks are less visible than v.
func WithMinVisibility(v float64) Option {
	return func(s *Scorer) {
		if v >= 0 && v <= 1 {
			s.minVisibility = v
		}
	}
}

// WithLogger sets the logger used for omitted joints.
func WithLogger(l logger.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.log = l
		}
	}
}

// Scorer applies exercise thresholds to joint angles. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	tiers                TierScores
	visibilityConfidence bool
	minVisibility        float64
	log                  logger.Logger
}

// NewScorer creates a Scorer with the default tiers.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		tiers: TierScores{
			Perfect:          defaultPerfectScore,
			Good:             defaultGoodScore,
			NeedsImprovement: defaultNeedsImprovementScore,
		},
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tiers returns the configured tier values.
func (s *Scorer) Tiers() TierScores {
	return s.tiers
}

// ScoreJoint classifies angle against cfg with the default confidence.
func (s *Scorer) ScoreJoint(angle float64, cfg exercise.Config) JointScore {
	tier := cfg.Tier(angle)
	return JointScore{
		Angle:      geometry.Round2(angle),
		Score:      s.tiers.For(tier),
		Feedback:   cfg.Feedback.For(tier),
		Confidence: defaultConfidence,
		Tier:       tier,
	}
}

// ScoreFrame scores every joint of cfg whose three landmarks are present in
// frame. The boolean is false when no joint could be scored.
func (s *Scorer) ScoreFrame(frame landmark.Frame, cfg exercise.Config) (FrameScore, bool) {
	byName := frame.ByName()
	joints := make(map[string]JointScore, len(cfg.Triples))

	for _, tr := range cfg.Triples {
		a, okA := byName[tr.A]
		v, okV := byName[tr.Vertex]
		c, okC := byName[tr.C]
		if !okA || !okV || !okC {
			s.log.Debug(context.Background(), "joint omitted: landmark missing",
				logger.Int("frame", frame.Index), logger.String("joint", tr.Joint))
			continue
		}
		minVis := math.Min(a.Visibility, math.Min(v.Visibility, c.Visibility))
		if minVis < s.minVisibility {
			s.log.Debug(context.Background(), "joint omitted: low visibility",
				logger.Int("frame", frame.Index), logger.String("joint", tr.Joint),
				logger.Float64("visibility", minVis))
			continue
		}

		js := s.ScoreJoint(geometry.Angle(a.Point(), v.Point(), c.Point()), cfg)
		if s.visibilityConfidence {
			js.Confidence = geometry.Round2(minVis)
		}
		joints[tr.Joint] = js
	}

	if len(joints) == 0 {
		return FrameScore{}, false
	}
	return FrameScore{Frame: frame.Index, TimestampSec: frame.TimestampSec, Joints: joints}, true
}

// ScoreAll scores frames in order and discards those with no scorable joint.
// It stops early when ctx is done.
func (s *Scorer) ScoreAll(ctx context.Context, frames []landmark.Frame, cfg exercise.Config) ([]FrameScore, error) {
	out := make([]FrameScore, 0, len(frames))
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scoring interrupted at frame %d: %w", f.Index, err)
		}
		if fs, ok := s.ScoreFrame(f, cfg); ok {
			out = append(out, fs)
		}
	}
	return out, nil
}
