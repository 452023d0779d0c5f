package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kevin-twai/eatlyze-backend/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/запись чёрного списка).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/id).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// BumpTokenVersion атомарно инкрементирует token_version пользователя
	// на уровне БД и возвращает новое значение. Два конкурентных вызова
	// для одного пользователя дают +2, потерянных обновлений нет.
	BumpTokenVersion(ctx context.Context, id uuid.UUID) (int64, error)
}

// BlacklistStorage выполняет операции над чёрным списком токенов.
type BlacklistStorage interface {
	// AddToBlacklist добавляет запись; повторная вставка того же jti —
	// no-op (идемпотентность нужна для повторного logout).
	AddToBlacklist(ctx context.Context, entry *models.BlacklistEntry) error
	// IsBlacklisted проверяет наличие jti в чёрном списке.
	// Вызывается на горячем пути каждого аутентифицированного запроса.
	IsBlacklisted(ctx context.Context, jti uuid.UUID) (bool, error)
	// DeleteExpiredBlacklist удаляет записи с expires_at < now,
	// возвращает число удалённых.
	DeleteExpiredBlacklist(ctx context.Context, now time.Time) (int64, error)
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	BlacklistStorage
	Close()
}
