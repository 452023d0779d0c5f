package models

import (
	"time"

	"github.com/google/uuid"
)

// Причины попадания токена в чёрный список (для аудита).
const (
	ReasonLogout          = "logout"
	ReasonRefreshRotation = "refresh_rotation"
	ReasonLogoutAll       = "logout_all"
)

// BlacklistEntry — запись чёрного списка токенов.
//
// Токены сами по себе нигде не хранятся; чёрный список — разреженное
// множество исключений поверх пространства иначе валидных токенов,
// с ключом jti и сборкой мусора по истечению срока токена.
type BlacklistEntry struct {
	// JTI — уникальный идентификатор токена (claim jti).
	JTI uuid.UUID
	// Kind — тип токена (access/refresh).
	Kind TokenKind
	// UserID — владелец токена.
	UserID uuid.UUID
	// Reason — причина отзыва (logout / refresh_rotation / logout_all).
	Reason string
	// ExpiresAt — момент естественного истечения токена; после него запись
	// избыточна и удаляется фоновой очисткой.
	ExpiresAt time.Time
	CreatedAt time.Time
}
