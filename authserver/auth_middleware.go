package authserver

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUserID stores the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
	// ContextKeyClaims stores the parsed access token claims
	ContextKeyClaims ContextKey = "claims"
)

// ClaimsFromContext returns the claims RequireAuth stored on the request.
func ClaimsFromContext(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*UserClaims)
	return claims, ok
}

// RequireAuth validates the Bearer access token and injects its claims.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				writeJSONError(w, http.StatusUnauthorized, "no token found or invalid format")
				return
			}

			claims, err := s.tokens.Verify(parts[1], TokenTypeAccess)
			if err != nil {
				s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("access token rejected")
				writeJSONError(w, http.StatusUnauthorized, "token invalid")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireAdmin must be chained after RequireAuth. The account is looked up
// again so a revoked admin flag takes effect before the token expires.
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "user not authenticated")
				return
			}
			account, err := s.accounts.GetByID(claims.Subject)
			if err != nil || !account.Admin {
				writeJSONError(w, http.StatusForbidden, "admin permission required")
				return
			}
			next(w, r)
		}
	}
}
