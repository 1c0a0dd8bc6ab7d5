package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/httputil"
	"github.com/Duong-Anh-Duc/KH/pkg/logger"
)

// Header names carrying the credential pair. They are custom headers rather
// than the Authorization bearer scheme.
const (
	AccessTokenHeader  = "access-token"
	RefreshTokenHeader = "refresh-token"
	accessTokenQuery   = "access_token"
)

type contextKeyType string

const claimsKey contextKeyType = "claims"

// Claims represents the access-token claims extracted by the auth middleware.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// TokenValidator verifies an access token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// Auth verifies the access token on every request and injects the claims
// into the context. Failures are reported as 401 INVALID_TOKEN so clients
// know to run the refresh flow.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := AccessTokenFromHeader(r)
			if token == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("missing access token"), slog.Default())
				return
			}

			claims, err := validate(token)
			if err != nil {
				httputil.WriteError(w, r, apperrors.InvalidToken(), slog.Default())
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// AccessTokenFromHeader reads the access-token header, falling back to an
// Authorization bearer value.
func AccessTokenFromHeader(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(AccessTokenHeader)); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// AccessTokenFromRequest is AccessTokenFromHeader plus the access_token query
// parameter, for websocket handshakes where browsers cannot set headers.
func AccessTokenFromRequest(r *http.Request) string {
	if token := AccessTokenFromHeader(r); token != "" {
		return token
	}
	return r.URL.Query().Get(accessTokenQuery)
}

// WithClaims stores claims in ctx the same way Auth does.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return withClaims(ctx, claims)
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	ctx = logger.WithUserID(ctx, claims.UserID)
	l := logger.FromContext(ctx)
	if l != slog.Default() {
		ctx = logger.NewContext(ctx, l.With(slog.String("user_id", claims.UserID)))
	}
	return ctx
}

// RequireRole middleware checks that the authenticated user has the required role.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := roleSet[RoleFromContext(r.Context())]; !ok {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), slog.Default())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the claims stored by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// RoleFromContext extracts the user role from the request context.
func RoleFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Role
	}
	return ""
}
