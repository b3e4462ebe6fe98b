package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/willemschots/mailverify/internal/errorz"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeTooManyRequests(w http.ResponseWriter, retryAfterSeconds int) error {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	return writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error: "Too many requests, please try again later.",
	})
}

// handleError writes an error response. Internal errors are logged, clients
// only receive a generic message.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidInput errorz.InvalidInput
	if errors.As(err, &invalidInput) {
		s.deps.Logger.Info("invalid input", "path", r.URL.Path, "keys", invalidInput.Keys())
		_ = writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid input."})
		return
	}

	s.deps.Logger.Error("internal server error", "method", r.Method, "path", r.URL.Path, "error", err)
	_ = writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error."})
}
