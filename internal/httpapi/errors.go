package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/powermem-ai/powermem/pkg/errs"
)

// statusFor maps an [errs.Kind] to the HTTP status the error taxonomy
// prescribes (spec.md §7).
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidation:
		return http.StatusUnprocessableEntity
	case errs.KindPermission:
		return http.StatusForbidden
	case errs.KindConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code and JSON error envelope. Errors that
// are not a *errs.Error are treated as unexpected (500).
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var typed *errs.Error
	status := http.StatusInternalServerError
	body := errorBody{Code: string(errs.KindStorage), Message: "internal error"}

	if errors.As(err, &typed) {
		status = statusFor(typed.Kind)
		body = errorBody{Code: string(typed.Kind), Message: typed.Message}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("httpapi: request failed", "path", r.URL.Path, "method", r.Method, "error", err)
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: failed to encode response", "error", err)
	}
}
