package middleware

import (
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/kevin-twai/eatlyze-backend/internal/pkg/log"
)

// Logging кладёт request-scoped логгер (с request_id) в контекст запроса
// и пишет одну access-запись по завершении обработки.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := r.Header.Get("X-Request-Id"); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			r = r.WithContext(logctx.Into(r.Context(), reqLogger))

			rw := wrapWriter(w)
			start := time.Now()
			next.ServeHTTP(rw, r)

			logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelInfo, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", rw.written),
			)
		})
	}
}
