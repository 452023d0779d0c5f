package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kevin-twai/eatlyze-backend/internal/models"
	"github.com/kevin-twai/eatlyze-backend/internal/pkg/log"
	"github.com/kevin-twai/eatlyze-backend/internal/pkg/redact"
	"github.com/kevin-twai/eatlyze-backend/internal/storage"
)

// RegisterUser регистрирует нового пользователя и выдаёт первую пару токенов.
func (s *Service) RegisterUser(ctx context.Context, email, name, password string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		Name:         name,
		PasswordHash: hashedPassword,
		TokenVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// LoginUser выполняет вход по email+пароль с лимитером на входе.
//
// Порядок: сначала лимитер (отказ — RateLimitedError c retry-after ещё до
// обращения к БД), затем проверка учётных данных. Неизвестный email и
// неверный пароль дают одинаковый ErrInvalidCredentials.
// После успешного входа чистится только бакет (email, IP).
func (s *Service) LoginUser(ctx context.Context, email, password, ip string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if s.limiter != nil {
		decision, err := s.limiter.Check(ctx, ip, normEmail)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}

		if !decision.Allowed {
			lg.Warn("login_rate_limited",
				slog.String("op", op),
				slog.String("email", redact.Email(normEmail)),
				slog.String("ip", ip),
				slog.Duration("retry_after", decision.RetryAfter),
			)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, &RateLimitedError{RetryAfter: decision.RetryAfter})
		}
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	// Успешный вход: бакет (email, IP) больше не нужен. Best-effort —
	// неудача чистки не должна ломать вход.
	if s.limiter != nil {
		if err := s.limiter.ResetOnSuccess(ctx, ip, normEmail); err != nil {
			lg.Warn("limiter_reset_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// RefreshTokens обменивает refresh-токен на новую пару (ротация).
//
// Старый refresh уходит в чёрный список, поэтому он одноразовый: повторное
// предъявление отбивается так же, как неизвестный токен. Версия сессии в
// токене обязана совпадать с текущей версией пользователя.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RefreshTokens"

	lg := log.From(ctx)

	claims, err := s.decodeToken(refreshToken, models.KindRefresh)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	revoked, err := s.storage.IsBlacklisted(ctx, jti)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	if revoked {
		lg.Warn("refresh_replayed",
			slog.String("op", op),
			slog.String("jti", jti.String()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if claims.Ver != user.TokenVersion {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenVersionStale)
	}

	// Ротация: старый refresh в чёрный список до выдачи нового.
	// Вставка идемпотентна, повтор при обрыве соединения безопасен.
	if entry := blacklistEntryFromClaims(claims, models.ReasonRefreshRotation); entry != nil {
		if err := s.storage.AddToBlacklist(ctx, entry); err != nil {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// Logout отзывает предъявленные токены (access и, опционально, refresh),
// занося их jti в чёрный список. Идемпотентен: повторный вызов с теми же
// токенами — no-op без ошибки. Токены, из которых не извлекаются claims,
// молча пропускаются (им нечего отзывать).
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	const op = "service.auth.Logout"

	for _, tokenStr := range []string{accessToken, refreshToken} {
		if tokenStr == "" {
			continue
		}

		claims, err := s.peekClaims(tokenStr)
		if err != nil {
			continue
		}

		if entry := blacklistEntryFromClaims(claims, models.ReasonLogout); entry != nil {
			if err := s.storage.AddToBlacklist(ctx, entry); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	return nil
}

// LogoutAll — «выход со всех устройств»: атомарный инкремент версии сессии
// обесценивает все ранее выпущенные токены без их перечисления. Предъявленный
// access дополнительно попадает в чёрный список, чтобы отзыв сработал ещё до
// того, как version-check увидит новую версию. Возвращает новую версию.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID, accessToken string) (int64, error) {
	const op = "service.auth.LogoutAll"

	version, err := s.storage.BumpTokenVersion(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if accessToken != "" {
		if claims, err := s.peekClaims(accessToken); err == nil {
			if entry := blacklistEntryFromClaims(claims, models.ReasonLogoutAll); entry != nil {
				if err := s.storage.AddToBlacklist(ctx, entry); err != nil {
					return 0, fmt.Errorf("%s: %w", op, err)
				}
			}
		}
	}

	return version, nil
}

// SweepBlacklist удаляет истёкшие записи чёрного списка, возвращает число
// удалённых. Вызывается фоновой задачей по расписанию и как ручная операция
// обслуживания; ошибки у планировщика логируются и не фатальны.
func (s *Service) SweepBlacklist(ctx context.Context, now time.Time) (int64, error) {
	const op = "service.auth.SweepBlacklist"

	removed, err := s.storage.DeleteExpiredBlacklist(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return removed, nil
}
