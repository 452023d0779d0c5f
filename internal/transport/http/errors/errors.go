// errors стандартизирует ответы об ошибках HTTP-слоя auth-сервиса.
// На вход он принимает ошибку сервисного слоя (сентинелы пакета service),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Ключевое правило: все отказы аутентификации (невалидный/истёкший/
// отозванный токен, чужой тип, устаревшая версия сессии, неверные учётные
// данные) наружу неразличимы — единый 401 с одним и тем же телом.
// Различить «нет такого аккаунта» и «неверный пароль» по ответу нельзя.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kevin-twai/eatlyze-backend/internal/service"
)

// APIError — единый формат ошибки для клиента.
// Code — короткий стабильный код для машиночитаемой обработки.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Локальные ошибки HTTP-слоя; сервисный слой про них не знает.
var (
	// ErrBadRequest — битое тело запроса, отсутствующие поля.
	ErrBadRequest = errors.New("bad request")

	// ErrInternal — паника или иная внутренняя ошибка обработчика.
	ErrInternal = errors.New("internal")
)

// ToHTTP конвертирует ошибку сервисного слоя в HTTP-статус и
// унифицированный ответ.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal, чтобы не
//     послать «200 OK» с телом ошибки и не маскировать баг;
//   - отказ аутентификации (любой из токен-сентинелов либо
//     ErrInvalidCredentials) — 401 с единым телом;
//   - ErrRateLimited — 429 (Retry-After выставляет WriteError);
//   - валидационные сентинелы — 400, ErrEmailTaken — 409;
//   - всё прочее (ошибки БД/Redis) — 503: отказ инфраструктуры,
//     аутентифицировать нельзя, но клиенту имеет смысл повторить.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusInternalServerError, ErrorResponse{
			Error: APIError{Code: "internal", Message: "internal error"},
		}
	}

	switch {
	case service.IsAuthFailure(err), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{
			Error: APIError{Code: "unauthenticated", Message: "authentication failed"},
		}
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{
			Error: APIError{Code: "rate_limited", Message: "too many login attempts"},
		}
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, ErrorResponse{
			Error: APIError{Code: "email_taken", Message: "email already registered"},
		}
	case errors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, ErrorResponse{
			Error: APIError{Code: "invalid_email", Message: "invalid email format"},
		}
	case errors.Is(err, service.ErrWeakPassword), errors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, ErrorResponse{
			Error: APIError{Code: "weak_password", Message: "password does not meet requirements"},
		}
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, ErrorResponse{
			Error: APIError{Code: "invalid_argument", Message: "invalid argument"},
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, ErrorResponse{
			Error: APIError{Code: "internal", Message: "internal error"},
		}
	default:
		return http.StatusServiceUnavailable, ErrorResponse{
			Error: APIError{Code: "unavailable", Message: "service unavailable"},
		}
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он
// есть. Для 429 дополнительно выставляет Retry-After в секундах.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	var rlErr *service.RateLimitedError
	if errors.As(err, &rlErr) {
		secs := int64(rlErr.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
