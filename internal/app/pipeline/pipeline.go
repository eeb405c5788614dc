// Package pipeline drives one analysis from video to summary:
// START -> EXTRACT -> SCORE -> SUMMARIZE -> DONE, any failure -> FAILED.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/physiopulse/internal/adapters/artifact"
	"github.com/okian/physiopulse/internal/adapters/extractor"
	"github.com/okian/physiopulse/internal/adapters/media"
	"github.com/okian/physiopulse/internal/domain/exercise"
	"github.com/okian/physiopulse/internal/domain/geometry"
	"github.com/okian/physiopulse/internal/domain/landmark"
	"github.com/okian/physiopulse/internal/domain/model"
	"github.com/okian/physiopulse/internal/domain/scoring"
	"github.com/okian/physiopulse/internal/domain/summary"
	"github.com/okian/physiopulse/pkg/logger"
	"github.com/okian/physiopulse/pkg/metrics"
)

const (
	defaultFrameSkip = 5
	defaultOutputDir = "outputs"
)

// Request describes one analysis.
type Request struct {
	// AnalysisID is generated when empty. A supplied id must be a plain
	// file name component with no artifacts in the output dir yet.
	AnalysisID   string
	VideoPath    string
	OutputDir    string
	ExerciseType exercise.Type
	PatientID    string
	SessionID    string
}

// Result is what a completed run hands back to its caller.
type Result struct {
	AnalysisID     string          `json:"analysis_id"`
	Status         model.Status    `json:"status"`
	ProcessingTime float64         `json:"processing_time"`
	ExerciseType   exercise.Type   `json:"exercise_type"`
	PatientID      string          `json:"patient_id,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	Files          model.Files     `json:"files"`
	Summary        summary.Summary `json:"summary"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// Pipeline runs analyses. A Pipeline is safe for concurrent Run calls only
// when its extractor is; see extractor.Serialize.
type Pipeline struct {
	extractor extractor.Extractor
	scorer    *scoring.Scorer
	validator *media.Validator
	frameSkip int
	outputDir string
	newID     func() string
	log       logger.Logger
}

// New creates a Pipeline. Without options it uses the fixture engine.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: extractor.NewFixture(),
		scorer:    scoring.NewScorer(),
		validator: media.NewValidator(),
		frameSkip: defaultFrameSkip,
		outputDir: defaultOutputDir,
		newID:     uuid.NewString,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewID returns a fresh analysis id from the pipeline's generator.
func (p *Pipeline) NewID() string {
	return p.newID()
}

// Writer returns the artifact writer for dir, or the default output dir when dir is empty.
func (p *Pipeline) Writer(dir string) (*artifact.Writer, error) {
	if dir == "" {
		dir = p.outputDir
	}
	return artifact.NewWriter(dir)
}

// run carries the state of one invocation.
type run struct {
	p      *Pipeline
	req    Request
	id     string
	start  time.Time
	stage  Stage
	writer *artifact.Writer
	log    logger.Logger
}

// Run executes the whole pipeline synchronously. On failure every artifact
// written for the analysis is removed before the *Error is returned, also
// when ctx was cancelled or timed out.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	r := &run{p: p, req: req, id: req.AnalysisID, start: time.Now(), stage: StageStart}
	if r.id == "" {
		r.id = p.newID()
	}
	r.log = p.log.With(logger.String("analysis_id", r.id), logger.String("exercise", string(req.ExerciseType)))
	r.log.Info(ctx, "analysis started", logger.String("video", req.VideoPath))

	res, err := r.execute(ctx)
	elapsed := time.Since(r.start)
	res.ProcessingTime = geometry.Round2(elapsed.Seconds())
	if err != nil {
		res.Status = model.StatusFailed
		res.Files = model.Files{}
		return res, r.fail(ctx, elapsed, err)
	}

	metrics.RecordRun(string(req.ExerciseType), string(model.StatusCompleted), elapsed.Seconds())
	r.log.Info(ctx, "analysis completed",
		logger.Duration("elapsed", elapsed),
		logger.Float64("average_score", res.Summary.AverageScore),
		logger.Int("frames", res.Summary.TotalFrames))
	return res, nil
}

// stageError pairs a failure kind with its cause until fail wraps it.
type stageError struct {
	kind  error
	cause error
}

func (e *stageError) Error() string { return fmt.Sprintf("%v: %v", e.kind, e.cause) }

func failWith(kind, cause error) error { return &stageError{kind: kind, cause: cause} }

func (r *run) execute(ctx context.Context) (Result, error) {
	res := Result{
		AnalysisID:   r.id,
		Status:       model.StatusFailed,
		ExerciseType: r.req.ExerciseType,
		PatientID:    r.req.PatientID,
		SessionID:    r.req.SessionID,
	}

	// START
	if err := checkID(r.id); err != nil {
		return res, failWith(ErrInvalidInput, err)
	}
	if _, err := r.p.validator.Exists(r.req.VideoPath); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return res, failWith(ErrNotFound, err)
		}
		return res, failWith(ErrInvalidInput, err)
	}
	cfg, err := exercise.Lookup(r.req.ExerciseType)
	if err != nil {
		return res, failWith(ErrScoring, err)
	}
	report, err := r.p.validator.Validate(ctx, r.req.VideoPath)
	if err != nil {
		return res, failWith(ErrInvalidInput, err)
	}
	res.Warnings = report.Warnings
	for _, w := range report.Warnings {
		r.log.Warn(ctx, "video warning", logger.String("warning", w))
	}
	w, err := r.p.Writer(r.req.OutputDir)
	if err != nil {
		return res, failWith(ErrPersist, err)
	}
	if w.Exists(r.id) {
		return res, failWith(ErrInvalidInput, fmt.Errorf("analysis %s already has artifacts in %s", r.id, w.Dir()))
	}
	r.writer = w

	// EXTRACT
	frames, err := r.extract(ctx)
	if err != nil {
		return res, err
	}
	if res.Files.Landmarks, err = r.writer.Write(r.id, model.ArtifactLandmarks, frames); err != nil {
		return res, failWith(ErrPersist, err)
	}

	// SCORE
	scores, err := r.score(ctx, frames, cfg)
	if err != nil {
		return res, err
	}
	if res.Files.Scores, err = r.writer.Write(r.id, model.ArtifactScores, scores); err != nil {
		return res, failWith(ErrPersist, err)
	}

	// SUMMARIZE
	r.stage = StageSummarize
	if err := ctx.Err(); err != nil {
		return res, failWith(ErrCanceled, err)
	}
	stageStart := time.Now()
	res.Summary = summary.Summarize(scores, frames)
	if res.Files.Summary, err = r.writer.Write(r.id, model.ArtifactSummary, res.Summary); err != nil {
		return res, failWith(ErrPersist, err)
	}
	metrics.RecordStageDuration(string(StageSummarize), time.Since(stageStart).Seconds())

	r.stage = StageDone
	res.Status = model.StatusCompleted
	return res, nil
}

// checkID rejects ids that would escape or be ambiguous in the output dir.
func checkID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("analysis id is empty")
	case strings.ContainsAny(id, `/\`), strings.Contains(id, ".."):
		return fmt.Errorf("analysis id %q is not a plain name", id)
	}
	return nil
}

func (r *run) extract(ctx context.Context) (frames []landmark.Frame, err error) {
	r.stage = StageExtract
	if err := ctx.Err(); err != nil {
		return nil, failWith(ErrCanceled, err)
	}
	stageStart := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			frames, err = nil, failWith(ErrExtraction, fmt.Errorf("engine panic: %v", rec))
		}
	}()

	raw, err := r.p.extractor.Extract(ctx, r.req.VideoPath, r.p.frameSkip)
	if err != nil {
		return nil, failWith(ErrExtraction, err)
	}
	frames, err = landmark.Validate(raw)
	if err != nil {
		return nil, failWith(ErrExtraction, err)
	}
	if len(frames) == 0 {
		return nil, failWith(ErrExtraction, errors.New("engine returned no landmark frames"))
	}

	metrics.AddFramesExtracted(len(frames))
	metrics.RecordStageDuration(string(StageExtract), time.Since(stageStart).Seconds())
	r.log.Debug(ctx, "landmarks extracted",
		logger.Int("frames", len(frames)),
		logger.Int("dropped", len(raw)-len(frames)),
		logger.Int("frame_skip", r.p.frameSkip))
	return frames, nil
}

func (r *run) score(ctx context.Context, frames []landmark.Frame, cfg exercise.Config) (scores []scoring.FrameScore, err error) {
	r.stage = StageScore
	stageStart := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			scores, err = nil, failWith(ErrScoring, fmt.Errorf("scorer panic: %v", rec))
		}
	}()

	scores, err = r.p.scorer.ScoreAll(ctx, frames, cfg)
	if err != nil {
		return nil, failWith(ErrCanceled, err)
	}

	for _, fs := range scores {
		for joint, js := range fs.Joints {
			metrics.ObserveJointScore(string(cfg.Type), joint, js.Score)
		}
	}
	metrics.AddFramesScored(len(scores), len(frames)-len(scores))
	metrics.RecordStageDuration(string(StageScore), time.Since(stageStart).Seconds())
	r.log.Debug(ctx, "frames scored", logger.Int("scored", len(scores)), logger.Int("unscored", len(frames)-len(scores)))
	return scores, nil
}

// fail removes partial artifacts and builds the *Error returned by Run.
func (r *run) fail(ctx context.Context, elapsed time.Duration, err error) error {
	kind, cause := ErrExtraction, err
	var se *stageError
	if errors.As(err, &se) {
		kind, cause = se.kind, se.cause
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(kind, ErrNotFound) {
		kind = ErrCanceled
		if !errors.Is(cause, ctxErr) {
			cause = errors.Join(cause, ctxErr)
		}
	}

	if r.writer != nil {
		removed, rmErr := r.writer.Remove(r.id)
		metrics.AddArtifactsCleaned(removed)
		if rmErr != nil {
			r.log.Error(ctx, "artifact cleanup incomplete", logger.Error(rmErr))
		} else if removed > 0 {
			r.log.Debug(ctx, "partial artifacts removed", logger.Int("files", removed))
		}
	}

	metrics.RecordRun(string(r.req.ExerciseType), string(model.StatusFailed), elapsed.Seconds())
	metrics.RecordError("pipeline", KindName(kind))
	r.log.Error(ctx, "analysis failed",
		logger.String("stage", string(r.stage)),
		logger.String("kind", KindName(kind)),
		logger.Duration("elapsed", elapsed),
		logger.Error(cause))

	return &Error{
		Kind:           kind,
		Stage:          r.stage,
		AnalysisID:     r.id,
		ProcessingTime: elapsed,
		Err:            cause,
	}
}
