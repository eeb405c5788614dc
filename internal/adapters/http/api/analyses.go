package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	service "github.com/okian/physiopulse/internal/app"
	"github.com/okian/physiopulse/internal/domain/exercise"
	"github.com/okian/physiopulse/internal/domain/model"
	"github.com/okian/physiopulse/pkg/logger"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultPageLimit  = 10
)

// analysisRequest is the JSON form of a submission for a video already on
// the server's filesystem.
type analysisRequest struct {
	VideoPath    string `json:"video_path"`
	ExerciseType string `json:"exercise_type"`
	PatientID    string `json:"patient_id"`
	SessionID    string `json:"session_id"`
}

type submitResponse struct {
	model.Analysis
	Duplicate bool `json:"duplicate"`
}

// analysisResponse carries artifacts requested through ?include= inline.
type analysisResponse struct {
	model.Analysis
	Scores    json.RawMessage `json:"scores,omitempty"`
	Landmarks json.RawMessage `json:"landmarks,omitempty"`
}

type exerciseResponse struct {
	Exercises []exercise.Config `json:"exercises"`
}

// handleExercises handles GET /exercises.
func (s *Server) handleExercises(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, exerciseResponse{Exercises: exercise.All()})
}

// handleAnalyze handles POST /analyze and answers once the run has finished.
// An uploaded video belongs to the service from here on, also when the
// client stops waiting.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	include, err := parseInclude(r.URL.Query().Get("include"))
	if err != nil {
		s.writeFailure(w, r, "", err)
		return
	}
	sub, err := s.readSubmission(r)
	if err != nil {
		s.writeFailure(w, r, "", err)
		return
	}

	a, err := s.deps.Analyze(r.Context(), sub)
	if err != nil {
		s.writeFailure(w, r, a.ID, err)
		return
	}
	s.writeAnalysis(w, r, a, include)
}

// handleSubmit handles POST /analyses and answers 202 once the job is queued.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sub, err := s.readSubmission(r)
	if err != nil {
		s.writeFailure(w, r, "", err)
		return
	}

	a, dup, err := s.deps.Submit(r.Context(), sub)
	if err != nil {
		s.writeFailure(w, r, a.ID, err)
		return
	}

	status := http.StatusAccepted
	if dup {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/analyses/"+a.ID)
	writeJSON(w, status, submitResponse{Analysis: a, Duplicate: dup})
}

// handleList handles GET /analyses?patient_id=&limit=&offset=.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	page, err := s.deps.List(r.Context(), model.Filter{PatientID: q.Get("patient_id")}, limit, offset)
	if err != nil {
		s.writeFailure(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleGet handles GET /analyses/{id}?include=scores,landmarks.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	include, err := parseInclude(r.URL.Query().Get("include"))
	if err != nil {
		s.writeFailure(w, r, id, err)
		return
	}
	a, err := s.deps.Get(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, id, err)
		return
	}
	s.writeAnalysis(w, r, a, include)
}

// handleDownload handles GET /analyses/{id}/download/{kind}.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, kind := chi.URLParam(r, "id"), chi.URLParam(r, "kind")
	path, err := s.deps.ArtifactPath(r.Context(), id, kind)
	if err != nil {
		s.writeFailure(w, r, id, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(path)}))
	http.ServeFile(w, r, path)
}

// readSubmission accepts either a multipart upload (field "video") or a JSON
// body naming a server-side video_path. Uploads are marked so the service
// disposes of them.
func (s *Server) readSubmission(r *http.Request) (service.Submission, error) {
	sub := service.Submission{IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader))}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req analysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return sub, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		if strings.TrimSpace(req.VideoPath) == "" {
			return sub, fmt.Errorf("%w: missing video_path", ErrBadRequest)
		}
		t, err := parseExercise(req.ExerciseType)
		if err != nil {
			return sub, err
		}
		sub.VideoPath, sub.ExerciseType, sub.PatientID, sub.SessionID = req.VideoPath, t, req.PatientID, req.SessionID
		return sub, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, int64(s.maxUploadMB+1)<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return sub, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	t, err := parseExercise(r.FormValue("exercise_type"))
	if err != nil {
		return sub, err
	}
	sub.ExerciseType, sub.PatientID, sub.SessionID = t, r.FormValue("patient_id"), r.FormValue("session_id")

	file, header, err := r.FormFile("video")
	if err != nil {
		return sub, fmt.Errorf("%w: missing video file: %w", ErrBadRequest, err)
	}
	defer func() { _ = file.Close() }()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		return sub, err
	}
	s.logger.Debug(r.Context(), "video uploaded",
		logger.String("file", header.Filename),
		logger.String("path", path),
		logger.Int("bytes", int(header.Size)))
	sub.VideoPath, sub.Upload = path, true
	return sub, nil
}

// saveUpload stores the upload under a fresh uuid, keeping its extension.
func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return path, nil
}

// parseInclude reads a comma separated list of inlined artifacts. Only
// scores and landmarks are accepted; the summary is always part of the body.
func parseInclude(raw string) ([]model.ArtifactKind, error) {
	var kinds []model.ArtifactKind
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k := model.ArtifactKind(part)
		if k != model.ArtifactScores && k != model.ArtifactLandmarks {
			return nil, fmt.Errorf("%w: cannot include %q", ErrBadRequest, part)
		}
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// writeAnalysis answers 200 with a, inlining the included artifacts once the
// analysis has completed.
func (s *Server) writeAnalysis(w http.ResponseWriter, r *http.Request, a model.Analysis, include []model.ArtifactKind) {
	resp := analysisResponse{Analysis: a}
	if a.Status != model.StatusCompleted {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	for _, k := range include {
		path, err := s.deps.ArtifactPath(r.Context(), a.ID, string(k))
		if err != nil {
			s.writeFailure(w, r, a.ID, err)
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.writeFailure(w, r, a.ID, fmt.Errorf("%w: %w", service.ErrArtifactUnavailable, err))
			return
		}
		switch k {
		case model.ArtifactScores:
			resp.Scores = data
		case model.ArtifactLandmarks:
			resp.Landmarks = data
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseExercise defaults to arm_extension when name is empty.
func parseExercise(name string) (exercise.Type, error) {
	if strings.TrimSpace(name) == "" {
		return exercise.ArmExtension, nil
	}
	return exercise.Parse(name)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}
