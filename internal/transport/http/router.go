// Package http собирает REST-маршруты auth-сервиса.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kevin-twai/eatlyze-backend/internal/service"
	"github.com/kevin-twai/eatlyze-backend/internal/transport/http/handlers"
	"github.com/kevin-twai/eatlyze-backend/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/v1"; если пустой — роуты регистрируются на корне.

	// TrustProxy — доверять X-Forwarded-For при определении IP клиента.
	// По умолчанию выключено: лимитер входа считает по RemoteAddr.
	TrustProxy bool
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		middleware.Recover(),            // ловим паники уже с request_id в логгере
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc, opts.TrustProxy)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, svc)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, svc)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, svc *service.Service) {
	// Публичные операции.
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)

	// Операции, требующие валидного access-токена.
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireAuth(svc))

		pr.Post("/auth/logout", h.Logout)
		pr.Post("/auth/logout-all", h.LogoutAll)
		pr.Get("/auth/me", h.Me)
	})
}
