package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/physiopulse/internal/adapters/extractor"
	"github.com/okian/physiopulse/internal/adapters/http/api"
	"github.com/okian/physiopulse/internal/adapters/repository"
	service "github.com/okian/physiopulse/internal/app"
	"github.com/okian/physiopulse/internal/app/pipeline"
	"github.com/okian/physiopulse/internal/domain/exercise"
	"github.com/okian/physiopulse/internal/domain/landmark"
	"github.com/okian/physiopulse/internal/domain/model"
)

// fakeDeps records calls and answers with canned results.
type fakeDeps struct {
	mu        sync.Mutex
	subs      []service.Submission
	analyzeFn func(service.Submission) (model.Analysis, error)
	submitErr error
	duplicate bool
	records   map[string]model.Analysis
	artifacts map[string]string
	lastList  []int
	stopped   bool
}

func (f *fakeDeps) record(sub service.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
}

func (f *fakeDeps) Submit(_ context.Context, sub service.Submission) (model.Analysis, bool, error) {
	f.record(sub)
	if f.submitErr != nil {
		return model.Analysis{}, false, f.submitErr
	}
	return model.Analysis{ID: "an-1", Status: model.StatusPending, ExerciseType: sub.ExerciseType}, f.duplicate, nil
}

func (f *fakeDeps) Analyze(_ context.Context, sub service.Submission) (model.Analysis, error) {
	f.record(sub)
	return f.analyzeFn(sub)
}

func (f *fakeDeps) Get(_ context.Context, id string) (model.Analysis, error) {
	a, ok := f.records[id]
	if !ok {
		return model.Analysis{}, repository.ErrNotFound
	}
	return a, nil
}

func (f *fakeDeps) List(_ context.Context, filter model.Filter, limit, offset int) (service.Page, error) {
	f.lastList = []int{limit, offset}
	items := []model.Analysis{}
	for _, a := range f.records {
		if filter.Match(a) {
			items = append(items, a)
		}
	}
	return service.Page{Items: items, Total: len(items), Limit: limit, Offset: offset}, nil
}

func (f *fakeDeps) ArtifactPath(_ context.Context, id, kind string) (string, error) {
	if _, err := model.ParseArtifactKind(kind); err != nil {
		return "", err
	}
	p, ok := f.artifacts[id+"/"+kind]
	if !ok {
		return "", service.ErrArtifactUnavailable
	}
	return p, nil
}

func (f *fakeDeps) Stats() service.Stats {
	return service.Stats{Started: !f.stopped, Workers: 2, QueueCapacity: 64}
}

func newDeps() *fakeDeps {
	return &fakeDeps{
		analyzeFn: func(sub service.Submission) (model.Analysis, error) {
			return model.Analysis{ID: "an-sync", Status: model.StatusCompleted, ExerciseType: sub.ExerciseType}, nil
		},
		records:   map[string]model.Analysis{},
		artifacts: map[string]string{},
	}
}

func do(h http.Handler, method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func multipartBody(fields map[string]string, filename string, content []byte) ([]byte, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if filename != "" {
		fw, _ := mw.CreateFormFile("video", filename)
		_, _ = fw.Write(content)
	}
	_ = mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHealthAndMetrics(t *testing.T) {
	convey.Convey("Given the API handler", t, func() {
		deps := newDeps()
		h := api.NewServer(deps, api.WithVersion("1.2.3")).Handler()

		convey.Convey("When /healthz is requested on a running service", func() {
			w := do(h, http.MethodGet, "/healthz", nil, nil)

			convey.Convey("Then it reports healthy with stats", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				body := decode(w)
				convey.So(body["status"], convey.ShouldEqual, "healthy")
				convey.So(body["version"], convey.ShouldEqual, "1.2.3")
				convey.So(body["stats"].(map[string]any)["workers"], convey.ShouldEqual, float64(2))
			})
		})

		convey.Convey("When the service is stopped", func() {
			deps.stopped = true
			w := do(h, http.MethodGet, "/healthz", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})

		convey.Convey("When /metrics is scraped after a request", func() {
			_ = do(h, http.MethodGet, "/exercises", nil, nil)
			w := do(h, http.MethodGet, "/metrics", nil, nil)

			convey.Convey("Then HTTP metrics are labelled by route", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "physiopulse_analysis_http_requests_total")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `route="/exercises"`)
			})
		})

		convey.Convey("When /exercises is requested", func() {
			w := do(h, http.MethodGet, "/exercises", nil, nil)

			convey.Convey("Then every registered exercise is listed", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				list := decode(w)["exercises"].([]any)
				convey.So(len(list), convey.ShouldEqual, len(exercise.Types()))
				first := list[0].(map[string]any)
				convey.So(first["type"], convey.ShouldEqual, string(exercise.ArmExtension))
				convey.So(first["perfect_range"], convey.ShouldResemble, map[string]any{"lo": float64(150), "hi": float64(180)})
			})
		})

		convey.Convey("When the docs are requested", func() {
			convey.So(do(h, http.MethodGet, "/openapi.yaml", nil, nil).Code, convey.ShouldEqual, http.StatusOK)
		})
	})
}

func TestAnalyzeEndpoint(t *testing.T) {
	convey.Convey("Given the API with an upload directory", t, func() {
		deps := newDeps()
		uploads := t.TempDir()
		h := api.NewServer(deps, api.WithUploadDir(uploads)).Handler()

		convey.Convey("When a video is uploaded for synchronous analysis", func() {
			body, ct := multipartBody(map[string]string{"exercise_type": "squat", "patient_id": "p1"}, "Clip.MP4", []byte("frames"))
			w := do(h, http.MethodPost, "/analyze", body, map[string]string{"Content-Type": ct})

			convey.Convey("Then the upload is stored under a uuid name and analyzed", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode(w)["analysis_id"], convey.ShouldEqual, "an-sync")
				convey.So(len(deps.subs), convey.ShouldEqual, 1)
				sub := deps.subs[0]
				convey.So(sub.ExerciseType, convey.ShouldEqual, exercise.Squat)
				convey.So(sub.PatientID, convey.ShouldEqual, "p1")
				convey.So(filepath.Dir(sub.VideoPath), convey.ShouldEqual, uploads)
				convey.So(filepath.Ext(sub.VideoPath), convey.ShouldEqual, ".mp4")
				raw, err := os.ReadFile(sub.VideoPath)
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(raw), convey.ShouldEqual, "frames")
			})
		})

		convey.Convey("When the synchronous analysis asks for inline scores", func() {
			scores := filepath.Join(t.TempDir(), "an-sync_scores.json")
			convey.So(os.WriteFile(scores, []byte(`[]`), 0o600), convey.ShouldBeNil)
			deps.artifacts["an-sync/scores"] = scores
			body, ct := multipartBody(nil, "clip.mp4", []byte("x"))
			w := do(h, http.MethodPost, "/analyze?include=scores", body, map[string]string{"Content-Type": ct})

			convey.Convey("Then they are part of the response", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode(w)["scores"], convey.ShouldResemble, []any{})
			})
		})

		convey.Convey("When an unknown include is requested", func() {
			body, ct := multipartBody(nil, "clip.mp4", []byte("x"))
			w := do(h, http.MethodPost, "/analyze?include=frames", body, map[string]string{"Content-Type": ct})

			convey.Convey("Then nothing is uploaded or analyzed", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
				convey.So(deps.subs, convey.ShouldBeEmpty)
				entries, _ := os.ReadDir(uploads)
				convey.So(entries, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When no exercise type is given", func() {
			body, ct := multipartBody(nil, "clip.mp4", []byte("x"))
			_ = do(h, http.MethodPost, "/analyze", body, map[string]string{"Content-Type": ct})

			convey.Convey("Then arm_extension is assumed", func() {
				convey.So(deps.subs[0].ExerciseType, convey.ShouldEqual, exercise.ArmExtension)
			})
		})

		convey.Convey("When the exercise type is unknown", func() {
			body, ct := multipartBody(map[string]string{"exercise_type": "yoga"}, "clip.mp4", []byte("x"))
			w := do(h, http.MethodPost, "/analyze", body, map[string]string{"Content-Type": ct})

			convey.Convey("Then it is a 400 and nothing is analyzed", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
				convey.So(decode(w)["code"], convey.ShouldEqual, "bad_request")
				convey.So(deps.subs, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the video part is missing", func() {
			body, ct := multipartBody(map[string]string{"exercise_type": "squat"}, "", nil)
			w := do(h, http.MethodPost, "/analyze", body, map[string]string{"Content-Type": ct})
			convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("When the pipeline fails", func() {
			cases := []struct {
				err    error
				status int
			}{
				{&pipeline.Error{Kind: pipeline.ErrNotFound, AnalysisID: "an-x"}, http.StatusNotFound},
				{&pipeline.Error{Kind: pipeline.ErrInvalidInput, AnalysisID: "an-x"}, http.StatusBadRequest},
				{&pipeline.Error{Kind: pipeline.ErrExtraction, AnalysisID: "an-x"}, http.StatusInternalServerError},
				{&pipeline.Error{Kind: pipeline.ErrScoring, AnalysisID: "an-x"}, http.StatusInternalServerError},
				{fmt.Errorf("wrap: %w", service.ErrBusy), http.StatusTooManyRequests},
				{context.DeadlineExceeded, http.StatusGatewayTimeout},
			}
			for _, tc := range cases {
				deps.analyzeFn = func(service.Submission) (model.Analysis, error) {
					return model.Analysis{ID: "an-x", Status: model.StatusFailed}, tc.err
				}
				body, ct := multipartBody(map[string]string{"exercise_type": "squat"}, "clip.mp4", []byte("x"))
				w := do(h, http.MethodPost, "/analyze", body, map[string]string{"Content-Type": ct})

				convey.So(w.Code, convey.ShouldEqual, tc.status)
				convey.So(decode(w)["analysis_id"], convey.ShouldEqual, "an-x")
			}

			convey.Convey("Then the uploads are handed to the service untouched", func() {
				convey.So(len(deps.subs), convey.ShouldEqual, len(cases))
				for _, sub := range deps.subs {
					convey.So(sub.Upload, convey.ShouldBeTrue)
					_, err := os.Stat(sub.VideoPath)
					convey.So(err, convey.ShouldBeNil)
				}
			})
		})

		convey.Convey("When a JSON body names a server-side video", func() {
			w := do(h, http.MethodPost, "/analyze",
				[]byte(`{"video_path":"/data/a.mp4","exercise_type":"shoulder_press","session_id":"s9"}`),
				map[string]string{"Content-Type": "application/json"})

			convey.Convey("Then the path is passed through untouched", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(deps.subs[0].VideoPath, convey.ShouldEqual, "/data/a.mp4")
				convey.So(deps.subs[0].Upload, convey.ShouldBeFalse)
				convey.So(deps.subs[0].ExerciseType, convey.ShouldEqual, exercise.ShoulderPress)
				convey.So(deps.subs[0].SessionID, convey.ShouldEqual, "s9")
			})
		})

		convey.Convey("When the JSON body is malformed or lacks a path", func() {
			w1 := do(h, http.MethodPost, "/analyze", []byte(`{`), nil)
			w2 := do(h, http.MethodPost, "/analyze", []byte(`{"exercise_type":"squat"}`), nil)
			convey.So(w1.Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(w2.Code, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAnalyzeOutlivesClient(t *testing.T) {
	convey.Convey("Given the API on a service whose extractor waits for a release", t, func() {
		uploads := t.TempDir()
		release := make(chan struct{})
		var statErr error
		slow := extractor.Func(func(ctx context.Context, videoPath string, _ int) ([]landmark.Frame, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if _, err := os.Stat(videoPath); err != nil {
				statErr = err
				return nil, err
			}
			return extractor.NewFixture(extractor.WithFrames(12)).Extract(ctx, videoPath, 1)
		})
		out := t.TempDir()
		svc := service.New(func(int) *pipeline.Pipeline {
			return pipeline.New(pipeline.WithExtractor(slow), pipeline.WithOutputDir(out))
		}, service.WithWorkerCount(1))
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = svc.Stop(ctx)
		}()
		h := api.NewServer(svc, api.WithUploadDir(uploads)).Handler()

		convey.Convey("When the client gives up before the run finishes", func() {
			body, ct := multipartBody(map[string]string{"exercise_type": "arm_extension"}, "clip.mp4", []byte("frames"))
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(body)).WithContext(ctx)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			convey.So(w.Code, convey.ShouldEqual, http.StatusGatewayTimeout)
			id, _ := decode(w)["analysis_id"].(string)
			convey.So(id, convey.ShouldNotBeEmpty)

			convey.Convey("Then the upload survives until the job is done", func() {
				entries, err := os.ReadDir(uploads)
				convey.So(err, convey.ShouldBeNil)
				convey.So(entries, convey.ShouldHaveLength, 1)

				close(release)
				a := waitForStatus(svc, id, model.StatusCompleted)
				convey.So(statErr, convey.ShouldBeNil)
				convey.So(a.Status, convey.ShouldEqual, model.StatusCompleted)

				entries, err = os.ReadDir(uploads)
				convey.So(err, convey.ShouldBeNil)
				convey.So(entries, convey.ShouldHaveLength, 1)
			})
		})
	})
}

func waitForStatus(svc *service.Service, id string, want model.Status) model.Analysis {
	deadline := time.Now().Add(5 * time.Second)
	for {
		a, err := svc.Get(context.Background(), id)
		if (err == nil && a.Status == want) || time.Now().After(deadline) {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitEndpoint(t *testing.T) {
	convey.Convey("Given the API", t, func() {
		deps := newDeps()
		h := api.NewServer(deps, api.WithUploadDir(t.TempDir())).Handler()
		body := []byte(`{"video_path":"/data/a.mp4","exercise_type":"squat"}`)

		convey.Convey("When a job is submitted with an idempotency key", func() {
			w := do(h, http.MethodPost, "/analyses", body, map[string]string{"Idempotency-Key": " req-42 "})

			convey.Convey("Then it is accepted with a Location", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusAccepted)
				convey.So(w.Header().Get("Location"), convey.ShouldEqual, "/analyses/an-1")
				convey.So(decode(w)["duplicate"], convey.ShouldEqual, false)
				convey.So(deps.subs[0].IdempotencyKey, convey.ShouldEqual, "req-42")
			})
		})

		convey.Convey("When the key was seen before", func() {
			deps.duplicate = true
			w := do(h, http.MethodPost, "/analyses", body, nil)

			convey.Convey("Then the original analysis is returned with 200", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(decode(w)["duplicate"], convey.ShouldEqual, true)
			})
		})

		convey.Convey("When the queue is full", func() {
			deps.submitErr = fmt.Errorf("%w: queue full", service.ErrBusy)
			w := do(h, http.MethodPost, "/analyses", body, nil)

			convey.Convey("Then it answers 429", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusTooManyRequests)
				convey.So(decode(w)["code"], convey.ShouldEqual, "backpressure")
			})
		})

		convey.Convey("When the service is not started", func() {
			deps.submitErr = service.ErrNotStarted
			w := do(h, http.MethodPost, "/analyses", body, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestReadEndpoints(t *testing.T) {
	convey.Convey("Given records and artifacts", t, func() {
		deps := newDeps()
		dir := t.TempDir()
		summaryPath := filepath.Join(dir, "an-1_summary.json")
		convey.So(os.WriteFile(summaryPath, []byte(`{"average_score":75}`), 0o600), convey.ShouldBeNil)
		deps.records["an-1"] = model.Analysis{ID: "an-1", Status: model.StatusCompleted, PatientID: "p1"}
		deps.records["an-2"] = model.Analysis{ID: "an-2", Status: model.StatusFailed, PatientID: "p2", Error: "boom"}
		deps.artifacts["an-1/summary"] = summaryPath
		scoresPath := filepath.Join(dir, "an-1_scores.json")
		landmarksPath := filepath.Join(dir, "an-1_landmarks.json")
		convey.So(os.WriteFile(scoresPath, []byte(`[{"frame":1,"score":80}]`), 0o600), convey.ShouldBeNil)
		convey.So(os.WriteFile(landmarksPath, []byte(`[{"frame":1,"landmarks":[]}]`), 0o600), convey.ShouldBeNil)
		deps.artifacts["an-1/scores"] = scoresPath
		deps.artifacts["an-1/landmarks"] = landmarksPath
		h := api.NewServer(deps).Handler()

		convey.Convey("Then GET /analyses/{id} returns the record", func() {
			w := do(h, http.MethodGet, "/analyses/an-2", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(decode(w)["error"], convey.ShouldEqual, "boom")
		})

		convey.Convey("Then artifacts are only inlined on request", func() {
			plain := decode(do(h, http.MethodGet, "/analyses/an-1", nil, nil))
			convey.So(plain, convey.ShouldNotContainKey, "scores")
			convey.So(plain, convey.ShouldNotContainKey, "landmarks")

			w := do(h, http.MethodGet, "/analyses/an-1?include=scores,landmarks", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			body := decode(w)
			convey.So(body["analysis_id"], convey.ShouldEqual, "an-1")
			convey.So(body["scores"], convey.ShouldResemble, []any{map[string]any{"frame": float64(1), "score": float64(80)}})
			convey.So(body["landmarks"], convey.ShouldHaveLength, 1)

			only := decode(do(h, http.MethodGet, "/analyses/an-1?include=scores", nil, nil))
			convey.So(only, convey.ShouldContainKey, "scores")
			convey.So(only, convey.ShouldNotContainKey, "landmarks")
		})

		convey.Convey("Then include is ignored for unfinished runs and validated", func() {
			w := do(h, http.MethodGet, "/analyses/an-2?include=scores", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(decode(w), convey.ShouldNotContainKey, "scores")

			w = do(h, http.MethodGet, "/analyses/an-1?include=video", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(do(h, http.MethodGet, "/analyses/an-1?include=summary", nil, nil).Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("Then a completed run with a lost artifact is 404", func() {
			convey.So(os.Remove(landmarksPath), convey.ShouldBeNil)
			w := do(h, http.MethodGet, "/analyses/an-1?include=landmarks", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
		})

		convey.Convey("Then an unknown id is 404", func() {
			w := do(h, http.MethodGet, "/analyses/nope", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
			convey.So(decode(w)["code"], convey.ShouldEqual, "not_found")
		})

		convey.Convey("Then listing passes filter and window", func() {
			w := do(h, http.MethodGet, "/analyses?patient_id=p1&limit=5&offset=2", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(deps.lastList, convey.ShouldResemble, []int{5, 2})
			body := decode(w)
			convey.So(body["total"], convey.ShouldEqual, float64(1))
		})

		convey.Convey("Then listing defaults to ten per page", func() {
			_ = do(h, http.MethodGet, "/analyses", nil, nil)
			convey.So(deps.lastList, convey.ShouldResemble, []int{10, 0})
		})

		convey.Convey("Then a non-numeric limit is 400", func() {
			w := do(h, http.MethodGet, "/analyses?limit=ten", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
		})

		convey.Convey("Then an artifact downloads as an attachment", func() {
			w := do(h, http.MethodGet, "/analyses/an-1/download/summary", nil, nil)
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldEqual, `{"average_score":75}`)
			convey.So(w.Header().Get("Content-Disposition"), convey.ShouldContainSubstring, "an-1_summary.json")
		})

		convey.Convey("Then a bad kind is 400 and a missing artifact 404", func() {
			convey.So(do(h, http.MethodGet, "/analyses/an-1/download/video", nil, nil).Code, convey.ShouldEqual, http.StatusBadRequest)
			convey.So(do(h, http.MethodGet, "/analyses/an-2/download/scores", nil, nil).Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestUnknownRoute(t *testing.T) {
	convey.Convey("Given the API", t, func() {
		h := api.NewServer(newDeps()).Handler()
		w := do(h, http.MethodGet, "/leaderboard", nil, nil)
		convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
		convey.So(strings.Contains(w.Body.String(), "analysis"), convey.ShouldBeFalse)
	})
}
