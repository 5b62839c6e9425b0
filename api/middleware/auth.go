package middleware

import (
	"net/http"
	"strings"

	"github.com/quotaflow/quotaflow-backend/api/responses"
	pkgAuth "github.com/quotaflow/quotaflow-backend/pkg/auth"
	"github.com/quotaflow/quotaflow-backend/pkg/config"
	pkgerrors "github.com/quotaflow/quotaflow-backend/pkg/errors"
	"github.com/quotaflow/quotaflow-backend/pkg/logger"
)

// Auth validates a service bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseServiceToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithServiceIdentity(r.Context(), claims.ServiceName, claims.Scopes)

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"service_name": claims.ServiceName,
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose token does not carry the given scope.
func RequireScope(scope string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(r.Context(), scope) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "missing scope "+scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
