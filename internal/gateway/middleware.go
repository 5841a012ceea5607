package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

type contextKey string

const userClaimsKey contextKey = "user_claims"

// ClaimsFromContext returns the claims AuthMiddleware stored in ctx
func ClaimsFromContext(ctx context.Context) (*types.UserClaims, bool) {
	claims, ok := ctx.Value(userClaimsKey).(*types.UserClaims)
	return claims, ok && claims != nil
}

// WithClaims returns a copy of ctx carrying claims
func WithClaims(ctx context.Context, claims *types.UserClaims) context.Context {
	ctx = context.WithValue(ctx, userClaimsKey, claims)
	return context.WithValue(ctx, logger.UserIDKey, claims.UserID)
}

// AuthMiddleware rejects requests without a valid bearer token
type AuthMiddleware struct {
	validator *TokenValidator
	logger    *logger.Logger
}

// NewAuthMiddleware creates a new bearer authentication middleware
func NewAuthMiddleware(validator *TokenValidator, log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, logger: log}
}

// Handler wraps next with bearer token validation
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			writeUnauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.validator.ValidateJWT(strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.WithContext(r.Context()).WithFields(logrus.Fields{
				"path":  r.URL.Path,
				"error": err.Error(),
			}).Warn("Token validation failed")
			writeUnauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="ambulatorio"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"code":   types.ErrCodeUnauthorized,
		"status": http.StatusUnauthorized,
	})
}
