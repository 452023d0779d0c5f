package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kevin-twai/eatlyze-backend/internal/models"
)

// AddToBlacklist добавляет запись чёрного списка.
// Конфликт по jti гасится на уровне запроса (ON CONFLICT DO NOTHING):
// повторный logout с тем же токеном не должен превращаться в ошибку.
func (s *Storage) AddToBlacklist(ctx context.Context, entry *models.BlacklistEntry) error {
	const op = "storage.postgres.AddToBlacklist"

	query := `
		INSERT INTO token_blacklist(jti, token_kind, user_id, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (jti) DO NOTHING
	`

	_, err := s.db.Exec(ctx, query,
		entry.JTI,
		string(entry.Kind),
		entry.UserID,
		entry.Reason,
		entry.ExpiresAt,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsBlacklisted проверяет наличие jti в чёрном списке.
// Точечный поиск по уникальному индексу jti — O(1) на горячем пути.
func (s *Storage) IsBlacklisted(ctx context.Context, jti uuid.UUID) (bool, error) {
	const op = "storage.postgres.IsBlacklisted"

	query := `
		SELECT EXISTS(
			SELECT 1 FROM token_blacklist WHERE jti = $1
		)
	`

	var exists bool
	err := s.db.QueryRow(ctx, query, jti).Scan(&exists)
	if err != nil && err != pgx.ErrNoRows {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// DeleteExpiredBlacklist удаляет записи с истёкшим expires_at.
// Истёкшие записи избыточны (сам токен уже не пройдёт проверку exp),
// очистка лишь ограничивает размер таблицы.
func (s *Storage) DeleteExpiredBlacklist(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredBlacklist"

	query := `
		DELETE FROM token_blacklist
		WHERE expires_at < $1
	`

	cmdTag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}
