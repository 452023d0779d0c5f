package models

import (
	"time"

	"github.com/google/uuid"
)

// User — модель пользователя в системе.
//
// TokenVersion — монотонный счётчик версий сессии: каждый выпущенный токен
// несёт значение на момент выпуска; инкремент счётчика («выход со всех
// устройств») разом обесценивает все ранее выпущенные токены.
// Инвариант: TokenVersion никогда не убывает.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	TokenVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
