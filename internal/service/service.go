// service содержит бизнес-логику auth-сервиса: регистрацию и аутентификацию
// пользователей, выпуск/проверку/отзыв токенов, «выход со всех устройств»
// и работу с хранилищем через интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданные хранилище и лимитер потокобезопасны.
//   - Ошибки возвращаются сентинелами и далее маппятся транспортом на
//     HTTP-статусы (см. комментарии к переменным ошибок ниже).
//   - Все ошибки токенов (ErrInvalidToken/ErrTokenExpired/ErrTokenRevoked/
//     ErrWrongTokenKind/ErrTokenVersionStale) транспорт схлопывает в один
//     одинаковый ответ 401: различия нужны только для внутреннего ветвления
//     и телеметрии, наружу они не утекают (анти-энумерация).
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kevin-twai/eatlyze-backend/internal/config"
	"github.com/kevin-twai/eatlyze-backend/internal/ratelimit"
	"github.com/kevin-twai/eatlyze-backend/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Формулировка едина для обоих случаев, чтобы исключить перебор аккаунтов.
	// Транспорт: 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRateLimited — превышен лимит попыток входа; сопровождается
	// RateLimitedError с подсказкой retry-after. Транспорт: 429 + Retry-After.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidToken — токен некорректен по формату/подписи или ссылается
	// на несуществующего пользователя. Транспорт: 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Транспорт: 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — jti токена в чёрном списке (logout/rotation).
	// Транспорт: 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrWrongTokenKind — тип токена не соответствует операции
	// (refresh вместо access и наоборот). Транспорт: 401.
	ErrWrongTokenKind = errors.New("wrong token kind")

	// ErrTokenVersionStale — версия сессии в токене отстала от текущей
	// версии пользователя («выход со всех устройств»). Транспорт: 401.
	ErrTokenVersionStale = errors.New("token version stale")

	// ErrEmailTaken — e-mail уже занят другим пользователем. Транспорт: 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail — e-mail не проходит политику валидации. Транспорт: 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности. Транспорт: 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. Транспорт: 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// RateLimitedError несёт подсказку retry-after для ответа 429.
// errors.Is(err, ErrRateLimited) возвращает true.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// LoginLimiter — контракт лимитера попыток входа (см. internal/ratelimit).
type LoginLimiter interface {
	Check(ctx context.Context, ip, email string) (ratelimit.Decision, error)
	ResetOnSuccess(ctx context.Context, ip, email string) error
}

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	limiter LoginLimiter // может быть nil, если лимитер не сконфигурирован
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
	}
}

// SetLoginLimiter устанавливает лимитер попыток входа (опционально).
func (s *Service) SetLoginLimiter(l LoginLimiter) {
	s.limiter = l
}
