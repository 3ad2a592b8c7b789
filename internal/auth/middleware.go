package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"it-inventory-api/internal/apperr"
)

const maxTokenSize = 8192

// expiryWarning is how close to expiry a token must be before responses
// carry the X-Token-Expires-* headers.
const expiryWarning = time.Hour

func unauthorized(code, format string, args ...any) error {
	return WithCode(apperr.Unauthorizedf(format, args...), code)
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", unauthorized("MISSING_AUTH_HEADER", "authorization header required")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", unauthorized("INVALID_AUTH_FORMAT", "invalid authorization header format, expected: Bearer <token>")
	}
	if token == "" {
		return "", unauthorized("MISSING_TOKEN", "token is required")
	}
	if err := validateTokenFormat(token); err != nil {
		return "", unauthorized("INVALID_TOKEN_FORMAT", "invalid token format: %v", err)
	}
	return token, nil
}

// validateTokenFormat checks the size and the three dot-separated parts of a JWT.
func validateTokenFormat(tokenString string) error {
	if len(tokenString) == 0 {
		return errors.New("token cannot be empty")
	}
	if len(tokenString) > maxTokenSize {
		return errors.New("token size exceeds maximum allowed")
	}
	if strings.Count(tokenString, ".") != 2 {
		return errors.New("invalid JWT token format")
	}
	return nil
}

// tokenError classifies a ValidateToken failure.
func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return unauthorized("TOKEN_EXPIRED", "token has expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), strings.Contains(err.Error(), "signing method"):
		return unauthorized("INVALID_SIGNATURE", "invalid token signature")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return unauthorized("MALFORMED_TOKEN", "token is malformed")
	default:
		return unauthorized("INVALID_TOKEN", "invalid or expired token")
	}
}

// AuthMiddleware verifies the bearer token and stores the caller's Principal
// in the request context.
func AuthMiddleware(jwtManager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				WriteError(w, err)
				return
			}

			claims, err := jwtManager.ValidateToken(token)
			if err != nil {
				WriteError(w, tokenError(err))
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				WriteError(w, unauthorized("INVALID_SUBJECT", "missing subject in token"))
				return
			}

			if claims.IsExpiringSoon(expiryWarning) {
				if left := time.Until(claims.ExpiresAt.Time); left > 0 {
					w.Header().Set("X-Token-Expires-At", claims.ExpiresAt.Time.Format(time.RFC3339))
					w.Header().Set("X-Token-Expires-In", left.Round(time.Second).String())
				}
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Principal())))
		})
	}
}

// MustRole rejects requests whose principal holds none of roles.
func MustRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Require(PrincipalFromContext(r.Context()), roles...); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
