package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kevin-twai/eatlyze-backend/internal/models"
	"github.com/kevin-twai/eatlyze-backend/internal/service"
	apierrors "github.com/kevin-twai/eatlyze-backend/internal/transport/http/errors"
)

type ctxKey int

const (
	ctxUser ctxKey = iota
	ctxAccessToken
)

// BearerToken извлекает токен из Authorization: Bearer <token>.
// Возвращает "" при отсутствии или неверном формате заголовка.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}

	return strings.TrimSpace(auth[len(prefix):])
}

// Authenticator — часть сервиса, нужная мидлвару (для подмены в тестах).
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
	AuthenticateOptional(ctx context.Context, accessToken string) (*models.User, error)
}

// RequireAuth пропускает запрос дальше только с валидным access-токеном:
// подпись, тип, чёрный список, версия сессии. Любой отказ — единый 401,
// сбой хранилища — 503 (fail closed). Пользователь и сырой токен кладутся
// в контекст: хендлерам logout/logout-all нужен предъявленный токен.
func RequireAuth(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				apierrors.WriteError(w, r, service.ErrInvalidToken)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxUser, user)
			ctx = context.WithValue(ctx, ctxAccessToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth — неотказывающий вариант: невалидный или отсутствующий токен
// оставляет запрос анонимным (в контексте нет пользователя). Сбой хранилища
// по-прежнему даёт 503.
func OptionalAuth(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)

			user, err := auth.AuthenticateOptional(r.Context(), token)
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			if user != nil {
				ctx := context.WithValue(r.Context(), ctxUser, user)
				ctx = context.WithValue(ctx, ctxAccessToken, token)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFrom возвращает аутентифицированного пользователя из контекста.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(ctxUser).(*models.User)
	return user, ok
}

// AccessTokenFrom возвращает предъявленный access-токен из контекста.
func AccessTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(ctxAccessToken).(string)
	return token
}
