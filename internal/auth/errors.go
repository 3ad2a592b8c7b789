package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"it-inventory-api/internal/apperr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorStatus = []struct {
	kind   error
	status int
	code   string
}{
	{apperr.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{apperr.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{apperr.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{apperr.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{apperr.ErrConflict, http.StatusConflict, "CONFLICT"},
}

type codedError struct {
	error
	code string
}

func (e *codedError) Unwrap() error { return e.error }

// WithCode attaches a more specific error code to err. The status still
// follows the kind of err.
func WithCode(err error, code string) error {
	return &codedError{error: err, code: code}
}

// ErrorStatus returns the HTTP status and error code for err. Storage and
// unclassified errors are 500 INTERNAL_ERROR.
func ErrorStatus(err error) (int, string) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	for _, e := range errorStatus {
		if errors.Is(err, e.kind) {
			status, code = e.status, e.code
			break
		}
	}
	var ce *codedError
	if errors.As(err, &ce) {
		code = ce.code
	}
	return status, code
}

// WriteError writes err as an ErrorResponse. Only the client-facing message
// of err is sent; causes stay server side.
func WriteError(w http.ResponseWriter, err error) {
	status, code := ErrorStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: apperr.Message(err), Code: code})
}
