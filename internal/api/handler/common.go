// Package handler implements the read-only JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/api/middleware"
	"github.com/bcnelson/hackathon-manager/internal/domain"
)

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &domain.StandardErrorResponse{
		Error: domain.StandardError{Code: code, Message: message},
	})
}

// handleError converts domain errors to HTTP errors. Unexpected errors are
// logged and reported without detail.
func handleError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, domain.ErrCodeResourceNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid input")
	default:
		log.Error("api request failed",
			zap.String("request_id", middleware.RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal server error")
	}
}

func userStrings(users []domain.UserID) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = string(u)
	}
	return out
}
