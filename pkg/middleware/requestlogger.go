package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Christian112b/InonicApp/pkg/logger"
)

// RequestLogger stores a logger enriched with the correlation, user, session
// and trace ids in the request context. Mount it after RequestLogging,
// Tracing and Auth. sessionID may be nil.
func RequestLogger(base *slog.Logger, sessionID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			if sessionID != nil {
				if id := sessionID(); id != "" {
					ctx = logger.WithSessionID(ctx, id)
				}
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
