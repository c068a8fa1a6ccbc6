package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/devilmonastery/sessiongate/internal/auth"
	"github.com/devilmonastery/sessiongate/server/internal/httpapi/session"
)

// TokenVerifier validates session tokens
type TokenVerifier interface {
	Verify(token string) (*auth.SessionClaims, error)
}

// AuthMiddleware handles authentication checks for API requests
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// RequireAuth rejects requests without a valid session token with 401.
// The reason (expired, bad signature, malformed) is logged but never sent to the client.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := session.TokenFromRequest(r)
		if token == "" {
			unauthorized(w)
			return
		}

		claims, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Info("rejected session token",
				slog.String("reason", auth.VerificationResult(err)),
				slog.String("path", r.URL.Path))
			unauthorized(w)
			return
		}

		ctx := auth.SetUserInContext(r.Context(), auth.UserContextFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"statusCode": http.StatusUnauthorized,
		"message":    "Unauthorized",
	})
}
