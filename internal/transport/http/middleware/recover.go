package middleware

import (
	"log/slog"
	"net/http"

	logctx "github.com/kevin-twai/eatlyze-backend/internal/pkg/log"
	apierrors "github.com/kevin-twai/eatlyze-backend/internal/transport/http/errors"
)

// Recover перехватывает panic и конвертирует её в 500/internal.
// Детали паники не утекают на клиент.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelError, "panic",
						slog.String("path", r.URL.Path),
						slog.Any("reason", rec),
					)
					apierrors.WriteError(w, r, apierrors.ErrInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
