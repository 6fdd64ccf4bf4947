package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ecoproof-backend/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends v as a JSON body
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an error kind to an HTTP status
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	case models.KindIneligible:
		return http.StatusUnprocessableEntity
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindDependencyFailure:
		return http.StatusBadGateway
	case models.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondServiceError translates a service error into a response.
// Unclassified errors are logged and hidden behind a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.KindOf(err)
	status := statusFor(kind)

	if kind == models.KindInternal {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		respondError(w, "internal server error", status)
		return
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Upstream dependency failed")
	}
	respondJSON(w, status, ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

// decodeJSON reads the request body into v
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.ErrInvalidInput.WithCause(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// pathID parses the {id} URL parameter
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.ErrInvalidInput.WithCause(fmt.Errorf("invalid id %q", raw))
	}
	return id, nil
}

// queryFloat parses a required float query parameter
func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, models.ErrInvalidInput.WithCause(fmt.Errorf("invalid %s %q", name, raw))
	}
	return v, nil
}

// queryDuration parses a duration given either as Go syntax ("15m") or whole seconds
func queryDuration(r *http.Request, name string) (time.Duration, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, false, models.ErrInvalidInput.WithCause(fmt.Errorf("invalid %s %q", name, raw))
	}
	return d, true, nil
}

var (
	errUnavailable      = errors.New("feature is not configured")
	errMissingVoteValue = errors.New("vote_value is required")
)
