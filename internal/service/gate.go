package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kevin-twai/eatlyze-backend/internal/models"
	"github.com/kevin-twai/eatlyze-backend/internal/storage"
)

// Authenticate — конвейер проверки access-токена, общий для всех
// защищённых операций. Шаги строго последовательны:
//
//	декодирование -> проверка типа -> чёрный список -> загрузка
//	пользователя -> сверка версии сессии.
//
// Любой отказ транспорт отдаёт единым 401 без уточнения причины
// (expired/revoked/wrong kind наружу неразличимы). Ошибки I/O хранилища
// отказом НЕ считаются и пробрасываются как есть: на сбое стора
// аутентифицировать нельзя (fail closed, транспорт ответит 503).
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	const op = "service.gate.Authenticate"

	claims, err := s.decodeToken(accessToken, models.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if jti, err := uuid.Parse(claims.ID); err == nil {
		revoked, err := s.storage.IsBlacklisted(ctx, jti)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if revoked {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if claims.Ver != user.TokenVersion {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenVersionStale)
	}

	return user, nil
}

// AuthenticateOptional — неотказывающий вариант конвейера для эндпоинтов
// с необязательной аутентификацией: любой отказ проверки даёт (nil, nil)
// («аноним») вместо ошибки. Ошибки I/O хранилища по-прежнему
// пробрасываются — сбой стора не повод считать запрос анонимным.
func (s *Service) AuthenticateOptional(ctx context.Context, accessToken string) (*models.User, error) {
	const op = "service.gate.AuthenticateOptional"

	if accessToken == "" {
		return nil, nil
	}

	user, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		if IsAuthFailure(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// IsAuthFailure сообщает, относится ли ошибка к категории отказов
// аутентификации (в противоположность ошибкам инфраструктуры).
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrWrongTokenKind) ||
		errors.Is(err, ErrTokenVersionStale)
}
