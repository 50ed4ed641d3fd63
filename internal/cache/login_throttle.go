package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle counts failed logins per email and client IP inside a
// fixed window.
type LoginThrottle struct {
	rdb    redis.Cmdable
	max    int64
	window time.Duration
}

func NewLoginThrottle(rdb redis.Cmdable, maxAttempts int, window time.Duration) *LoginThrottle {
	return &LoginThrottle{rdb: rdb, max: int64(maxAttempts), window: window}
}

// loginKey hashes the email so addresses never appear in Redis keys.
func loginKey(email, ip string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return key("login", hex.EncodeToString(sum[:8]), ip)
}

// Check returns how long the caller must wait, or zero if another attempt
// is allowed.
func (t *LoginThrottle) Check(ctx context.Context, email, ip string) (time.Duration, error) {
	k := loginKey(email, ip)

	count, err := t.rdb.Get(ctx, k).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading login attempts: %w", err)
	}
	if count < t.max {
		return 0, nil
	}

	ttl, err := t.rdb.TTL(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("reading login window: %w", err)
	}
	if ttl <= 0 {
		ttl = t.window
	}
	return ttl, nil
}

// Fail records a failed attempt. The window starts with the first failure.
func (t *LoginThrottle) Fail(ctx context.Context, email, ip string) error {
	k := loginKey(email, ip)

	count, err := t.rdb.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("recording login failure: %w", err)
	}
	if count == 1 {
		if err := t.rdb.Expire(ctx, k, t.window).Err(); err != nil {
			return fmt.Errorf("setting login window: %w", err)
		}
	}
	return nil
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, email, ip string) error {
	if err := t.rdb.Del(ctx, loginKey(email, ip)).Err(); err != nil {
		return fmt.Errorf("resetting login attempts: %w", err)
	}
	return nil
}
