// handlers реализует REST-эндпоинты auth-сервиса поверх пакета service.
package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/kevin-twai/eatlyze-backend/internal/service"
)

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	Auth *service.Service

	// trustProxy разрешает брать IP клиента из X-Forwarded-For.
	// Включать только когда сервис стоит за доверенным reverse-proxy,
	// иначе заголовком можно подменить ключ лимитера входа.
	trustProxy bool
}

func New(svc *service.Service, trustProxy bool) *Handlers {
	return &Handlers{Auth: svc, trustProxy: trustProxy}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// clientIP определяет IP клиента для лимитера попыток входа:
// host-часть RemoteAddr; X-Forwarded-For учитывается только при
// явно включённом trustProxy (первый адрес в списке).
func (h *Handlers) clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); h.trustProxy && xff != "" {
		first := xff
		if idx := strings.IndexByte(xff, ','); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
