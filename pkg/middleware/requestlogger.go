package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Duong-Anh-Duc/KH/pkg/logger"
)

// RequestLogger stores a request-scoped logger carrying correlation_id,
// user_id, trace_id and span_id in the context for logger.FromContext.
//
// Mount it after RequestLogging and Tracing. Routes behind Auth pick up the
// user id because Auth re-runs enrichment once claims are known.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
