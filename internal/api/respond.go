package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/seantiz/modelrouter/internal/backend"
	"github.com/seantiz/modelrouter/internal/jobs"
	"github.com/seantiz/modelrouter/internal/router"
)

const maxBodySize = 1 << 20 // 1 MB

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure maps a domain error onto an HTTP status. Unexpected errors
// are logged and reported as "<action> failed".
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, backend.ErrNotTrained):
		s.writeError(w, http.StatusNotFound, "model not trained; train it first")
	case errors.Is(err, router.ErrNoBackendAvailable):
		s.writeError(w, http.StatusNotFound, "no trained models available for ensemble")
	case errors.Is(err, jobs.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrThrottled):
		s.writeError(w, http.StatusTooManyRequests, "too many training jobs submitted; retry later")
	default:
		s.logger.Error(action+" failed", "error", err, "path", r.URL.Path)
		s.writeError(w, http.StatusInternalServerError, action+" failed: "+err.Error())
	}
}

// decodeBody decodes an optional JSON request body into v. An empty body
// leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return decodeJSON(w, r, v, false)
}

// decodeStrictBody is decodeBody that also rejects fields v does not declare.
func decodeStrictBody(w http.ResponseWriter, r *http.Request, v any) error {
	return decodeJSON(w, r, v, true)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
