// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers a YAML file and PHYSIOPULSE_* environment variables on top.
// - Validate reports ErrInvalidConfig wrapped with the offending key.
package config

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Extractor implementations selectable by configuration.
const (
	ExtractorFixture = "fixture"
	ExtractorCommand = "command"
)

// Store backends selectable by configuration.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// OutputDir receives the three artifact files of every analysis.
	OutputDir string `koanf:"output_dir"`
	// UploadDir receives videos posted to the HTTP API.
	UploadDir string `koanf:"upload_dir"`

	// FrameSkip sends only every Nth decoded frame to the pose engine.
	// Higher values bound cost but drop the motion between samples, so
	// anything needing per-frame feedback must lower it.
	FrameSkip int `koanf:"frame_skip"`

	// MaxVideoSizeMB rejects larger uploads before extraction.
	MaxVideoSizeMB int `koanf:"max_video_size_mb"`
	// SupportedFormats lists accepted video extensions including the dot.
	SupportedFormats []string `koanf:"supported_formats"`
	// ProbeVideo runs ffprobe on every input before extraction.
	ProbeVideo bool `koanf:"probe_video"`
	// FFprobeBinary is the ffprobe executable used when ProbeVideo is set.
	FFprobeBinary string `koanf:"ffprobe_binary"`

	// Tier scores.
	PerfectScore          int `koanf:"perfect_score"`
	GoodScore             int `koanf:"good_score"`
	NeedsImprovementScore int `koanf:"needs_improvement_score"`

	// VisibilityConfidence derives joint confidence from landmark visibility
	// instead of reporting a constant 1.0.
	VisibilityConfidence bool `koanf:"visibility_confidence"`
	// MinVisibility omits joints whose landmarks are less visible. Zero disables.
	MinVisibility float64 `koanf:"min_visibility"`

	// Extractor selects the pose engine: fixture or command.
	Extractor string `koanf:"extractor"`
	// ExtractorCommand is the engine executable for the command extractor.
	ExtractorCommand string `koanf:"extractor_command"`
	// ExtractorArgs are passed before the video path and frame skip.
	ExtractorArgs []string `koanf:"extractor_args"`
	// FixtureFPS and FixtureFrames shape the synthetic video of the fixture engine.
	FixtureFPS    float64 `koanf:"fixture_fps"`
	FixtureFrames int     `koanf:"fixture_frames"`

	// Store selects the analysis store: memory, sqlite, postgres or redis.
	Store       string `koanf:"store"`
	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`
	RedisAddr   string `koanf:"redis_addr"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`
	// QueueSize bounds the pending analysis queue.
	QueueSize int `koanf:"queue_size"`
	// AnalysisTimeoutSeconds caps one pipeline run.
	AnalysisTimeoutSeconds int `koanf:"analysis_timeout_seconds"`
	// IdempotencySize bounds the request-key cache.
	IdempotencySize int `koanf:"idempotency_size"`
	// MaxListLimit caps GET /analyses?limit.
	MaxListLimit int `koanf:"max_list_limit"`

	// MetricsNamespace and MetricsSubsystem prefix every exported metric.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
}

// New creates a Config populated with defaults.
func New() *Config {
	workers := runtime.NumCPU()
	if workers > 5 {
		workers = 5
	}
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":8000",
		OutputDir:              "outputs",
		UploadDir:              "uploads",
		FrameSkip:              5,
		MaxVideoSizeMB:         100,
		SupportedFormats:       []string{".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv"},
		ProbeVideo:             false,
		FFprobeBinary:          "ffprobe",
		PerfectScore:           100,
		GoodScore:              75,
		NeedsImprovementScore:  50,
		VisibilityConfidence:   false,
		MinVisibility:          0,
		Extractor:              ExtractorFixture,
		FixtureFPS:             30,
		FixtureFrames:          150,
		Store:                  StoreMemory,
		SQLitePath:             "physiopulse.db",
		RedisAddr:              "localhost:6379",
		WorkerCount:            workers,
		QueueSize:              64,
		AnalysisTimeoutSeconds: 300,
		IdempotencySize:        10_000,
		MaxListLimit:           100,
		MetricsNamespace:       "physiopulse",
		MetricsSubsystem:       "analysis",
	}
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.OutputDir == "":
		return invalid("output_dir must not be empty")
	case c.FrameSkip < 1:
		return invalid("frame_skip must be at least 1")
	case c.MaxVideoSizeMB < 1:
		return invalid("max_video_size_mb must be positive")
	case len(c.SupportedFormats) == 0:
		return invalid("supported_formats must not be empty")
	case c.WorkerCount < 1:
		return invalid("worker_count must be at least 1")
	case c.QueueSize < 1:
		return invalid("queue_size must be at least 1")
	case c.AnalysisTimeoutSeconds < 1:
		return invalid("analysis_timeout_seconds must be positive")
	case c.MaxListLimit < 1:
		return invalid("max_list_limit must be positive")
	case c.MinVisibility < 0 || c.MinVisibility > 1:
		return invalid("min_visibility must be within [0,1]")
	case c.PerfectScore < c.GoodScore || c.GoodScore < c.NeedsImprovementScore:
		return invalid("tier scores must satisfy perfect >= good >= needs_improvement")
	case !metricName.MatchString(c.MetricsNamespace):
		return invalid(fmt.Sprintf("metrics_namespace %q is not a valid metric name prefix", c.MetricsNamespace))
	case c.MetricsSubsystem != "" && !metricName.MatchString(c.MetricsSubsystem):
		return invalid(fmt.Sprintf("metrics_subsystem %q is not a valid metric name prefix", c.MetricsSubsystem))
	}

	switch c.Extractor {
	case ExtractorFixture:
		if c.FixtureFPS <= 0 || c.FixtureFrames < 0 {
			return invalid("fixture_fps must be positive and fixture_frames non-negative")
		}
	case ExtractorCommand:
		if c.ExtractorCommand == "" {
			return invalid("extractor_command is required for the command extractor")
		}
	default:
		return invalid(fmt.Sprintf("unknown extractor %q", c.Extractor))
	}

	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path is required for the sqlite store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn is required for the postgres store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr is required for the redis store")
		}
	default:
		return invalid(fmt.Sprintf("unknown store %q", c.Store))
	}

	for _, f := range c.SupportedFormats {
		if !strings.HasPrefix(f, ".") {
			return invalid(fmt.Sprintf("supported format %q must start with a dot", f))
		}
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
