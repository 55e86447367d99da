package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/pkg/logger"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, ErrorResponse{Error: message}, statusCode)
}

// respondAppError maps an application error to its status. Unclassified errors are
// logged and reported as internal without leaking their text.
func respondAppError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		log.WithContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		respondJSON(w, ErrorResponse{Error: "internal error", Code: apperrors.ErrCodeInternal}, http.StatusInternalServerError)
		return
	}

	status := statusFor(appErr.Code)
	if status >= 500 {
		log.WithContext(r.Context()).Error("request failed", "path", r.URL.Path, "code", appErr.Code, "error", err)
	}
	respondJSON(w, ErrorResponse{Error: appErr.Message, Code: appErr.Code}, status)
}

func statusFor(code string) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInsufficientBalance, apperrors.ErrCodeInvalidState, apperrors.ErrCodeAlreadyReversed,
		apperrors.ErrCodeRecoveryMode, apperrors.ErrCodeAutoFixRefused:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeDuplicateRequest:
		return http.StatusConflict
	case apperrors.ErrCodeRetryLater:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.New("invalid " + name)
	}
	return id, nil
}

// decodeJSON reads an optional JSON body; an empty body leaves dst untouched
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
