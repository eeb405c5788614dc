package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/physiopulse/internal/adapters/repository"
	"github.com/okian/physiopulse/internal/app/pipeline"
	"github.com/okian/physiopulse/internal/config"
	"github.com/okian/physiopulse/internal/domain/model"
	"github.com/okian/physiopulse/pkg/logger"
	"github.com/okian/physiopulse/pkg/metrics"
)

// execute runs the CLI with args and returns what it wrote to stdout.
func execute(args ...string) (string, error) {
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "physiopulse.yaml")
	body := "output_dir: " + filepath.Join(dir, "outputs") + "\n" +
		"fixture_frames: 60\n" +
		"fixture_fps: 30\n" +
		"frame_skip: 5\n" +
		"log_level: error\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writeVideo(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o600); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given PHYSIOPULSE_ environment variables", t, func() {
		t.Setenv("PHYSIOPULSE_ADDR", ":9090")
		t.Setenv("PHYSIOPULSE_QUEUE_SIZE", "12")
		t.Setenv("PHYSIOPULSE_WORKER_COUNT", "2")
		t.Setenv("PHYSIOPULSE_STORE", "sqlite")
		t.Setenv("PHYSIOPULSE_METRICS_NAMESPACE", "clinic")

		convey.Convey("Then the loaded configuration reflects them", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 12)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "clinic")
			convey.So(cfg.MetricsSubsystem, convey.ShouldEqual, "analysis")
		})
	})
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When the memory store is selected", func() {
			store, err := openStore(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			convey.Convey("Then an in-memory store is returned", func() {
				_, ok := store.(*repository.MemoryStore)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the sqlite store is selected", func() {
			cfg.Store = config.StoreSQLite
			cfg.SQLitePath = filepath.Join(t.TempDir(), "db", "physiopulse.db")

			store, err := openStore(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			convey.Convey("Then records round-trip through the database file", func() {
				now := time.Now()
				a := model.Analysis{ID: "a1", Status: model.StatusPending, ExerciseType: "squat", CreatedAt: now, UpdatedAt: now}
				convey.So(store.Save(ctx, a), convey.ShouldBeNil)
				got, err := store.Get(ctx, "a1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Status, convey.ShouldEqual, model.StatusPending)
				_, statErr := os.Stat(cfg.SQLitePath)
				convey.So(statErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When an unknown store is selected", func() {
			cfg.Store = "cassandra"
			_, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then it reports an invalid configuration", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfigureMetrics(t *testing.T) {
	convey.Convey("Given a configured metrics prefix", t, func() {
		defer metrics.Configure()
		cfg := config.New()
		cfg.MetricsNamespace, cfg.MetricsSubsystem = "clinic", "pose"
		configureMetrics(cfg)
		metrics.RecordJobRejected()

		convey.Convey("Then exported metrics carry it", func() {
			families, err := metrics.GetRegistry().Gather()
			convey.So(err, convey.ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			convey.So(names, convey.ShouldContain, "clinic_pose_jobs_rejected_total")
			convey.So(names, convey.ShouldNotContain, "physiopulse_analysis_jobs_rejected_total")
		})
	})
}

func TestPipelineFactory(t *testing.T) {
	convey.Convey("Given the command extractor configuration", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)
		cfg := config.New()
		cfg.Extractor = config.ExtractorCommand
		cfg.ExtractorCommand = "pose-engine"

		convey.Convey("Then every worker gets its own pipeline", func() {
			factory := newPipelineFactory(cfg)
			p0, p1 := factory(0), factory(1)
			convey.So(p0, convey.ShouldNotBeNil)
			convey.So(p1, convey.ShouldNotBeNil)
			convey.So(p0, convey.ShouldNotPointTo, p1)
		})
	})
}

func TestExercisesCommand(t *testing.T) {
	convey.Convey("Given the exercises command", t, func() {
		cfgPath := writeConfig(t, t.TempDir())

		out, err := execute("--config", cfgPath, "exercises")

		convey.Convey("Then every registered exercise is listed", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "arm_extension")
			convey.So(out, convey.ShouldContainSubstring, "squat")
			convey.So(out, convey.ShouldContainSubstring, "shoulder_press")
			convey.So(out, convey.ShouldContainSubstring, "150-180°")
		})
	})
}

func TestAnalyzeCommand(t *testing.T) {
	convey.Convey("Given a config file and a video", t, func() {
		dir := t.TempDir()
		cfgPath := writeConfig(t, dir)
		video := writeVideo(t, dir)

		convey.Convey("When analyzing with the table output", func() {
			out, err := execute("--config", cfgPath, "analyze", video, "--exercise", "squat", "--patient", "p-1")

			convey.Convey("Then the summary and artifacts are printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "Average score")
				convey.So(out, convey.ShouldContainSubstring, "squat")
				convey.So(out, convey.ShouldContainSubstring, "completed")
				convey.So(out, convey.ShouldContainSubstring, filepath.Join(dir, "outputs"))
			})
		})

		convey.Convey("When analyzing with JSON output", func() {
			out, err := execute("--config", cfgPath, "analyze", video, "--json", "--output", filepath.Join(dir, "json"))
			convey.So(err, convey.ShouldBeNil)

			var res pipeline.Result
			convey.So(json.Unmarshal([]byte(out), &res), convey.ShouldBeNil)

			convey.Convey("Then the result carries the summary and written files", func() {
				convey.So(res.Status, convey.ShouldEqual, model.StatusCompleted)
				convey.So(string(res.ExerciseType), convey.ShouldEqual, "arm_extension")
				convey.So(res.Summary.TotalFrames, convey.ShouldEqual, 12)
				for _, f := range []string{res.Files.Landmarks, res.Files.Scores, res.Files.Summary} {
					_, statErr := os.Stat(f)
					convey.So(statErr, convey.ShouldBeNil)
					convey.So(filepath.Dir(f), convey.ShouldEqual, filepath.Join(dir, "json"))
				}
			})
		})

		convey.Convey("When the exercise is unknown", func() {
			_, err := execute("--config", cfgPath, "analyze", video, "--exercise", "plank")

			convey.Convey("Then the command fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "plank")
			})
		})

		convey.Convey("When the video does not exist", func() {
			_, err := execute("--config", cfgPath, "analyze", filepath.Join(dir, "missing.mp4"))

			convey.Convey("Then the command fails without artifacts", func() {
				convey.So(err, convey.ShouldNotBeNil)
				entries, _ := os.ReadDir(filepath.Join(dir, "outputs"))
				convey.So(entries, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When no video is given", func() {
			_, err := execute("--config", cfgPath, "analyze")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
