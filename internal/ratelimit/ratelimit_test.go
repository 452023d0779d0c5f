package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kevin-twai/eatlyze-backend/internal/config"
)

// Тесты лимитера на miniredis.
//
// Окно двигаем не реальным временем, а подменой l.now: скоринг записей
// считается на стороне клиента, поэтому FastForward miniredis нужен только
// для проверки TTL ключей.

func newLimiter(t *testing.T, cfg config.RateLimitConfig) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, cfg), mr
}

func testCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:       true,
		Window:        10 * time.Minute,
		MaxPerIP:      5,
		MaxPerEmailIP: 3,
	}
}

func TestCheck_AllowsUpToEmailIPLimit_ThenRejects(t *testing.T) {
	t.Parallel()

	l, _ := newLimiter(t, testCfg())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Check(ctx, "10.0.0.1", "user@example.com")
		require.NoError(t, err)
		require.True(t, d.Allowed, "попытка %d должна пройти", i+1)
	}

	// 4-я попытка в окне — отказ по бакету (email, IP).
	d, err := l.Check(ctx, "10.0.0.1", "user@example.com")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.GreaterOrEqual(t, d.RetryAfter, time.Second)
	require.LessOrEqual(t, d.RetryAfter, 10*time.Minute)
}

func TestCheck_IPLimit_IndependentOfEmail(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.MaxPerIP = 4
	cfg.MaxPerEmailIP = 100
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()

	// Разные email, один IP: IP-бакет набирается и срабатывает первым.
	emails := []string{"a@e.com", "b@e.com", "c@e.com", "d@e.com"}
	for _, e := range emails {
		d, err := l.Check(ctx, "10.0.0.2", e)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := l.Check(ctx, "10.0.0.2", "x@e.com")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.GreaterOrEqual(t, d.RetryAfter, time.Second)
}

func TestCheck_RejectedAttempt_NotRecorded(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.MaxPerEmailIP = 1
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()

	d, err := l.Check(ctx, "10.0.0.3", "u@e.com")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// Отказы не пополняют IP-бакет: другой email с того же IP проходит.
	for i := 0; i < 3; i++ {
		d, err = l.Check(ctx, "10.0.0.3", "u@e.com")
		require.NoError(t, err)
		require.False(t, d.Allowed)
	}

	d, err = l.Check(ctx, "10.0.0.3", "other@e.com")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestCheck_WindowExpiry_AllowsAgain(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.MaxPerEmailIP = 2
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()

	base := time.Now().UTC()
	l.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, "10.0.0.4", "w@e.com")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := l.Check(ctx, "10.0.0.4", "w@e.com")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Прошло окно целиком — старые записи подрезаются, попытка проходит.
	l.now = func() time.Time { return base.Add(cfg.Window + time.Second) }

	d, err = l.Check(ctx, "10.0.0.4", "w@e.com")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestCheck_RetryAfter_ReflectsOldestEntry(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.MaxPerEmailIP = 1
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()

	base := time.Now().UTC()
	l.now = func() time.Time { return base }

	d, err := l.Check(ctx, "10.0.0.5", "r@e.com")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// Через 4 минуты до выхода записи из 10-минутного окна остаётся ~6 минут.
	l.now = func() time.Time { return base.Add(4 * time.Minute) }

	d, err = l.Check(ctx, "10.0.0.5", "r@e.com")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.InDelta(t, (6 * time.Minute).Seconds(), d.RetryAfter.Seconds(), 2)
}

func TestResetOnSuccess_ClearsOnlyEmailIPBucket(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.MaxPerIP = 3
	cfg.MaxPerEmailIP = 2
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, "10.0.0.6", "s@e.com")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	require.NoError(t, l.ResetOnSuccess(ctx, "10.0.0.6", "s@e.com"))

	// Бакет (email, IP) очищен — попытка проходит...
	d, err := l.Check(ctx, "10.0.0.6", "s@e.com")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// ...но IP-бакет не обнулён: в нём уже 3 записи, 4-я упирается в лимит.
	d, err = l.Check(ctx, "10.0.0.6", "s@e.com")
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestCheck_Disabled_NeverTouchesRedis(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.Enabled = false
	l, mr := newLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		d, err := l.Check(ctx, "10.0.0.7", "d@e.com")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	require.NoError(t, l.ResetOnSuccess(ctx, "10.0.0.7", "d@e.com"))
	require.Empty(t, mr.Keys())
}

func TestCheck_EmptyEmail_OnlyIPBucket(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.MaxPerIP = 2
	l, mr := newLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Check(ctx, "10.0.0.8", "")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := l.Check(ctx, "10.0.0.8", "")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Бакеты (email, IP) не создавались.
	for _, k := range mr.Keys() {
		require.NotContains(t, k, keyPrefixEmailIP)
	}
}

func TestCheck_RedisDown_PropagatesError(t *testing.T) {
	t.Parallel()

	l, mr := newLimiter(t, testCfg())
	mr.Close()

	_, err := l.Check(context.Background(), "10.0.0.9", "e@e.com")
	require.Error(t, err)
}
