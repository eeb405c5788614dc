package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/physiopulse/internal/adapters/repository"
	service "github.com/okian/physiopulse/internal/app"
	"github.com/okian/physiopulse/internal/app/pipeline"
	"github.com/okian/physiopulse/internal/domain/exercise"
	"github.com/okian/physiopulse/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrUpload     = errors.New("upload failed")
)

// statusFor maps a service or pipeline error to an HTTP status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrArtifactUnavailable):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, exercise.ErrUnknownExercise),
		errors.Is(err, model.ErrUnknownArtifact):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrBusy):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}
