package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"it-inventory-api/internal/apperr"
	"it-inventory-api/internal/auth"
	"it-inventory-api/internal/models"
)

const maxJSONBody = 1 << 20 // 1 MB

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON document from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validationf("request body exceeds %d bytes", maxErr.Limit)
		}
		return apperr.Validationf("invalid JSON: %v", err)
	}
	return nil
}

// sendError writes err through the shared error writer. Storage and
// unclassified errors are logged with their cause first.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := auth.ErrorStatus(err); status == http.StatusInternalServerError {
		s.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	auth.WriteError(w, err)
}

// requestMeta extracts the caller origin recorded in audit entries.
// RemoteAddr has already been rewritten by the RealIP middleware.
func requestMeta(r *http.Request) models.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return models.RequestMeta{IPAddress: ip, UserAgent: r.UserAgent()}
}

func principal(r *http.Request) *auth.Principal {
	return auth.PrincipalFromContext(r.Context())
}

func messagef(format string, args ...any) map[string]string {
	return map[string]string{"message": fmt.Sprintf(format, args...)}
}
