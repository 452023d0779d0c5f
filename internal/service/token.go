package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kevin-twai/eatlyze-backend/internal/models"
	"github.com/kevin-twai/eatlyze-backend/internal/pkg/log"
)

// tokenClaims — подписываемый набор claims access/refresh токенов.
//
// Помимо стандартных (sub/jti/iat/exp/iss) несёт:
//   - kind — тип токена; проверяется на каждой операции, refresh никогда
//     не проходит как access;
//   - ver — версия сессии пользователя на момент выпуска; расхождение
//     с текущей версией означает «выход со всех устройств».
type tokenClaims struct {
	Kind string `json:"kind"`
	Ver  int64  `json:"ver"`
	jwt.RegisteredClaims
}

// ttlFor возвращает TTL для типа токена.
func (s *Service) ttlFor(kind models.TokenKind) time.Duration {
	if kind == models.KindRefresh {
		return s.cfg.RefreshTokenTTL
	}

	return s.cfg.AccessTokenTTL
}

// secretFor возвращает ключ подписи для типа токена.
// Для refresh действует fallback на access-ключ, если отдельный не задан
// (осознанное послабление; предупреждение пишется при старте сервиса).
func (s *Service) secretFor(kind models.TokenKind) []byte {
	if kind == models.KindRefresh {
		return []byte(s.cfg.RefreshSigningSecret())
	}

	return []byte(s.cfg.AccessSecret)
}

// issueToken выпускает подписанный токен заданного типа.
// Каждый токен получает свежий jti (uuid4) — он же ключ точечного отзыва.
func (s *Service) issueToken(ctx context.Context, kind models.TokenKind, user *models.User, now time.Time) (string, error) {
	const op = "service.token.issueToken"

	claims := tokenClaims{
		Kind: string(kind),
		Ver:  user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttlFor(kind))),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretFor(kind))
	if err != nil {
		log.From(ctx).Error("token_sign_failed",
			slog.String("op", op),
			slog.String("kind", string(kind)),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// decodeToken валидирует токен ключом своего типа и проверяет claim kind.
// Различимые исходы (внутренние, наружу транспорт отдаёт единый 401):
//   - ErrTokenExpired — истёк exp;
//   - ErrInvalidToken — подпись/формат/issuer;
//   - ErrWrongTokenKind — тип не совпал с ожиданием вызывающего.
func (s *Service) decodeToken(tokenStr string, kind models.TokenKind) (*tokenClaims, error) {
	const op = "service.token.decodeToken"

	token, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return s.secretFor(kind), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.Kind != string(kind) {
		return nil, fmt.Errorf("%s: %w", op, ErrWrongTokenKind)
	}

	return claims, nil
}

// peekClaims пытается валидировать токен любым из двух ключей (сначала
// access, затем refresh) и вернуть claims без требования к типу.
// Используется при logout: там важен jti/exp предъявленного токена,
// а не его назначение.
func (s *Service) peekClaims(tokenStr string) (*tokenClaims, error) {
	const op = "service.token.peekClaims"

	for _, kind := range []models.TokenKind{models.KindAccess, models.KindRefresh} {
		token, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{},
			func(t *jwt.Token) (interface{}, error) {
				return s.secretFor(kind), nil
			},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(5*time.Second),
			jwt.WithIssuer(s.cfg.Issuer),
		)

		if err != nil {
			continue
		}

		if claims, ok := token.Claims.(*tokenClaims); ok && token.Valid {
			return claims, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
}

// issueTokenPair выпускает пару access+refresh с текущей версией сессии.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.token.issueTokenPair"

	now := time.Now().UTC()

	accessToken, err := s.issueToken(ctx, models.KindAccess, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.issueToken(ctx, models.KindRefresh, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// blacklistEntryFromClaims собирает запись чёрного списка из claims токена.
// Возвращает nil, если в claims нет пригодного jti или exp —
// такой токен нечего отзывать.
func blacklistEntryFromClaims(claims *tokenClaims, reason string) *models.BlacklistEntry {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}

	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil
	}

	kind := models.TokenKind(claims.Kind)
	if kind != models.KindAccess && kind != models.KindRefresh {
		kind = models.KindAccess
	}

	return &models.BlacklistEntry{
		JTI:       jti,
		Kind:      kind,
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		CreatedAt: time.Now().UTC(),
	}
}
