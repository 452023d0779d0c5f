// ratelimit реализует sliding-window лимитер попыток входа поверх Redis.
//
// Два независимых пространства ключей:
//   - per-IP: ограничивает суммарный поток попыток с одного адреса;
//   - per-(email, IP): ограничивает подбор пароля к конкретному аккаунту
//     с конкретного адреса.
//
// Бакеты живут в Redis (sorted set: member — уникальная метка попытки,
// score — unix-время), поэтому лимит действует на всю горизонтально
// масштабированную инсталляцию, а не на отдельный инстанс.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kevin-twai/eatlyze-backend/internal/config"
)

const (
	keyPrefixIP      = "rl:login:ip:"
	keyPrefixEmailIP = "rl:login:ei:"
)

// Decision — результат проверки лимита.
type Decision struct {
	// Allowed — можно ли выполнять попытку входа.
	Allowed bool
	// RetryAfter — через сколько освободится лимитирующий бакет.
	// Заполняется только при отказе; всегда >= 1s.
	RetryAfter time.Duration
}

// Limiter — sliding-window лимитер попыток входа.
type Limiter struct {
	rdb *redis.Client
	cfg config.RateLimitConfig

	// переопределяется в тестах.
	now func() time.Time
}

// New создаёт лимитер поверх готового клиента Redis.
func New(rdb *redis.Client, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		rdb: rdb,
		cfg: cfg,
		now: time.Now,
	}
}

// NewFromURL создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и лимитер поверх него. Ping — fail-fast на старте.
func NewFromURL(ctx context.Context, redisURL string, cfg config.RateLimitConfig) (*Limiter, *redis.Client, error) {
	const op = "ratelimit.NewFromURL"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return New(rdb, cfg), rdb, nil
}

func keyIP(ip string) string {
	if ip == "" {
		ip = "unknown"
	}

	return keyPrefixIP + ip
}

func keyEmailIP(email, ip string) string {
	if ip == "" {
		ip = "unknown"
	}

	return keyPrefixEmailIP + strings.ToLower(email) + "|" + ip
}

// Check проверяет лимиты и, если попытка разрешена, записывает её в оба бакета.
// Порядок: сначала IP-бакет, затем (email, IP). Отказ по любому из бакетов —
// попытка НЕ записывается.
func (l *Limiter) Check(ctx context.Context, ip, email string) (Decision, error) {
	const op = "ratelimit.Check"

	if !l.cfg.Enabled {
		return Decision{Allowed: true}, nil
	}

	now := l.now().UTC()

	kip := keyIP(ip)
	if d, limited, err := l.bucketLimited(ctx, kip, now, l.cfg.MaxPerIP); err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	} else if limited {
		return d, nil
	}

	var kei string
	if email != "" {
		kei = keyEmailIP(email, ip)
		if d, limited, err := l.bucketLimited(ctx, kei, now, l.cfg.MaxPerEmailIP); err != nil {
			return Decision{}, fmt.Errorf("%s: %w", op, err)
		} else if limited {
			return d, nil
		}
	}

	if err := l.hit(ctx, kip, now); err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if kei != "" {
		if err := l.hit(ctx, kei, now); err != nil {
			return Decision{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	return Decision{Allowed: true}, nil
}

// ResetOnSuccess чистит бакет (email, IP) после успешного входа.
// IP-бакет намеренно не трогаем: одиночный успешный вход не должен
// обнулять защиту от распределённого перебора с того же адреса.
func (l *Limiter) ResetOnSuccess(ctx context.Context, ip, email string) error {
	const op = "ratelimit.ResetOnSuccess"

	if !l.cfg.Enabled || email == "" {
		return nil
	}

	if err := l.rdb.Del(ctx, keyEmailIP(email, ip)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// bucketLimited подрезает бакет до окна и проверяет лимит.
// При превышении возвращает Decision c retry-after от старейшей записи.
func (l *Limiter) bucketLimited(ctx context.Context, key string, now time.Time, limit int64) (Decision, bool, error) {
	windowStart := float64(now.UnixNano())/1e9 - l.cfg.Window.Seconds()

	if err := l.rdb.ZRemRangeByScore(ctx, key, "-inf", formatScore(windowStart)).Err(); err != nil {
		return Decision{}, false, err
	}

	count, err := l.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return Decision{}, false, err
	}

	if count < limit {
		return Decision{}, false, nil
	}

	retry, err := l.retryAfter(ctx, key, now)
	if err != nil {
		return Decision{}, false, err
	}

	return Decision{Allowed: false, RetryAfter: retry}, true, nil
}

// retryAfter считает, через сколько старейшая запись бакета выйдет из окна.
// Минимум — 1 секунда, чтобы клиент не ломился немедленно.
func (l *Limiter) retryAfter(ctx context.Context, key string, now time.Time) (time.Duration, error) {
	oldest, err := l.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, err
	}

	var retry time.Duration
	if len(oldest) > 0 {
		age := float64(now.UnixNano())/1e9 - oldest[0].Score
		retry = l.cfg.Window - time.Duration(age*float64(time.Second))
	}

	// округление вверх до целых секунд — значение уходит в Retry-After;
	// минимум 1s, чтобы клиент не ломился немедленно.
	secs := int64(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}

	return time.Duration(secs) * time.Second, nil
}

// hit записывает попытку и продлевает TTL ключа до длины окна.
func (l *Limiter) hit(ctx context.Context, key string, now time.Time) error {
	score := float64(now.UnixNano()) / 1e9
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.Expire(ctx, key, l.cfg.Window)

	_, err := pipe.Exec(ctx)
	return err
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
