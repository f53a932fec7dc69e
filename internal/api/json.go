package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/starford/ansuz/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error  string `json:"error" validate:"required"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a JSON body of at most limit bytes. An empty body leaves
// v untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, allowEmpty bool, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := json.NewDecoder(r.Body).Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.NewValidationError("body", "invalid JSON body")
	}
	return nil
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are logged
// and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		verr *apperr.ValidationError
		rerr *apperr.RejectedError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: verr.Message, Field: verr.Field})
	case errors.As(err, &rerr):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "content rejected", Reason: rerr.Reason})
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrQuotaExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorBody("daily AI limit reached; try again later or upgrade"))
	case errors.Is(err, apperr.ErrProviderUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("provider unavailable, try again"))
	case errors.Is(err, apperr.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
	default:
		slog.Error(op+" failed",
			slog.String("request_id", requestID(r)),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
