package pipeline

import (
	"github.com/okian/physiopulse/internal/adapters/extractor"
	"github.com/okian/physiopulse/internal/adapters/media"
	"github.com/okian/physiopulse/internal/domain/scoring"
	"github.com/okian/physiopulse/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithExtractor sets the pose engine.
func WithExtractor(e extractor.Extractor) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.extractor = e
		}
	}
}

// WithScorer sets the joint scorer.
func WithScorer(s *scoring.Scorer) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.scorer = s
		}
	}
}

// WithValidator sets the video validator.
func WithValidator(v *media.Validator) Option {
	return func(p *Pipeline) {
		if v != nil {
			p.validator = v
		}
	}
}

// WithFrameSkip sets the sampling interval sent to the engine.
func WithFrameSkip(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.frameSkip = n
		}
	}
}

// WithOutputDir sets the directory used when a Request names none.
func WithOutputDir(dir string) Option {
	return func(p *Pipeline) {
		if dir != "" {
			p.outputDir = dir
		}
	}
}

// WithIDGenerator replaces the analysis id source.
func WithIDGenerator(f func() string) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.newID = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}
