package models

import "time"

// TokenKind — тип выпускаемого токена: access или refresh.
// Тип зашивается в claims и проверяется на каждой операции — refresh-токен
// никогда не проходит как access и наоборот.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// TokenPair — пара токенов, выдаваемая при регистрации/логине/refresh.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — долгоживущий JWT, используемый исключительно для
//     обмена на новую пару (одноразовый: старый попадает в чёрный список);
//   - AccessExpiresAt — момент истечения access-токена (UTC).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}
