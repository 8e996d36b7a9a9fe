package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-geodrop/internal/lifecycle"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// toHTTPError maps engine errors onto HTTP statuses. Infrastructure details
// are logged, not returned.
func toHTTPError(logger *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrValidation):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, lifecycle.ErrNotFound):
		return huma.Error404NotFound("object not found")
	case errors.Is(err, lifecycle.ErrConflict):
		return huma.Error409Conflict("object changed concurrently, retry")
	case errors.Is(err, lifecycle.ErrUnavailable):
		logger.Warn("store unavailable", "op", op, "error", err)
		return huma.Error503ServiceUnavailable("store unavailable")
	case errors.Is(err, lifecycle.ErrCorrupt):
		logger.Error("corrupt object", "op", op, "error", err)
		return huma.Error500InternalServerError("corrupt object state")
	default:
		logger.Error("request failed", "op", op, "error", err)
		return huma.Error500InternalServerError("internal error")
	}
}
