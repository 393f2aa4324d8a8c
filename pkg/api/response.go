package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/abkit/pkg/allocator"
	"github.com/dmitrymomot/abkit/pkg/eventstore"
	"github.com/dmitrymomot/abkit/pkg/experiment"
	"github.com/dmitrymomot/abkit/pkg/flags"
	"github.com/dmitrymomot/abkit/pkg/logger"
)

// Envelope is the body of every API response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// errorMapping binds a sentinel error to a status and a stable code.
type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{experiment.ErrNotFound, http.StatusNotFound, "experiment_not_found"},
	{flags.ErrFlagNotFound, http.StatusNotFound, "flag_not_found"},
	{experiment.ErrExperimentExists, http.StatusConflict, "experiment_exists"},
	{flags.ErrFlagExists, http.StatusConflict, "flag_exists"},
	{experiment.ErrImmutableExperiment, http.StatusConflict, "experiment_immutable"},
	{experiment.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{experiment.ErrActionMismatch, http.StatusConflict, "action_mismatch"},
	{experiment.ErrFlagInUse, http.StatusConflict, "flag_in_use"},
	{eventstore.ErrExperimentClosed, http.StatusConflict, "experiment_closed"},
	{experiment.ErrInvalidAction, http.StatusUnprocessableEntity, "invalid_action"},
	{eventstore.ErrUnknownVariant, http.StatusUnprocessableEntity, "unknown_variant"},
	{eventstore.ErrUnknownMetric, http.StatusUnprocessableEntity, "unknown_metric"},
	{eventstore.ErrInvalidEvent, http.StatusBadRequest, "invalid_event"},
	{flags.ErrInvalidFlag, http.StatusBadRequest, "invalid_flag"},
	{flags.ErrEmptyParticipant, http.StatusBadRequest, "participant_required"},
	{allocator.ErrEmptyParticipant, http.StatusBadRequest, "participant_required"},
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{ErrUnsupportedMediaType, http.StatusUnsupportedMediaType, "unsupported_media_type"},
	{experiment.ErrLockUnavailable, http.StatusServiceUnavailable, "lock_unavailable"},
	{allocator.ErrNoVariants, http.StatusServiceUnavailable, "no_assignable_variant"},
}

// errorToDetail classifies err into a status and an error body. Unknown
// errors become a 500 without leaking their text.
func errorToDetail(err error) (int, *ErrorDetail) {
	var ve experiment.ValidationError
	if errors.As(err, &ve) {
		return http.StatusUnprocessableEntity, &ErrorDetail{
			Code:    "validation_error",
			Message: "experiment definition is invalid",
			Details: map[string][]string(ve),
		}
	}
	if experiment.IsTransitionError(err) {
		return http.StatusConflict, &ErrorDetail{Code: "invalid_transition", Message: err.Error()}
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, &ErrorDetail{Code: m.code, Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, &ErrorDetail{
		Code:    "internal_error",
		Message: http.StatusText(http.StatusInternalServerError),
	}
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

func respondMeta(w http.ResponseWriter, status int, data any, meta map[string]any) {
	writeJSON(w, status, Envelope{Data: data, Meta: meta})
}

// fail writes err as an error envelope and logs it at a level matching the
// status class.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := errorToDetail(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.LogAttrs(r.Context(), level, "request failed",
		logger.Error(err),
		slog.Int("status", status),
		slog.String("code", detail.Code),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	writeJSON(w, status, Envelope{Error: detail})
}
