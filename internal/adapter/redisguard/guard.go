// Package redisguard keeps a report from being dispatched twice.
package redisguard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
)

// KeyPrefix namespaces fingerprint keys.
const KeyPrefix = "browndog:report:"

// Returns {1, now} when the key was claimed, {0, first_seen} otherwise.
const luaClaimScript = `
local key = KEYS[1]
local ttl = tonumber(ARGV[2])

local ok = redis.call("SET", key, ARGV[1], "NX", "PX", ttl)
if ok then
  return { 1, tonumber(ARGV[1]) }
end
local seen = tonumber(redis.call("GET", key)) or 0
return { 0, seen }
`

// Guard implements domain.RunGuard on Redis.
type Guard struct {
	redis  redis.Cmdable
	script *redis.Script
	now    func() time.Time
}

// New wraps rdb. A nil client yields a nil Guard, which claims everything.
func New(rdb redis.Cmdable) *Guard {
	if rdb == nil {
		return nil
	}
	return &Guard{redis: rdb, script: redis.NewScript(luaClaimScript), now: time.Now}
}

// Claim atomically marks fingerprint as dispatched for ttl. It reports false
// when an earlier claim is still live.
func (g *Guard) Claim(ctx domain.Context, fingerprint string, ttl time.Duration) (bool, error) {
	if g == nil || g.redis == nil {
		return true, nil
	}
	if fingerprint == "" {
		return false, fmt.Errorf("op=redisguard.Claim: %w: empty fingerprint", domain.ErrInvalidArgument)
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	now := g.now().UnixMilli()
	res, err := g.script.Run(ctx, g.redis, []string{KeyPrefix + fingerprint}, now, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("op=redisguard.Claim: %w", err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("op=redisguard.Claim: unexpected script result %v", res)
	}
	if res[0] == 1 {
		return true, nil
	}
	obsctx.LoggerFromContext(ctx).Info("report fingerprint already claimed",
		slog.String("fingerprint", fingerprint),
		slog.Time("first_seen", time.UnixMilli(res[1]).UTC()))
	return false, nil
}

// Release drops a claim so the same report can be dispatched again.
func (g *Guard) Release(ctx context.Context, fingerprint string) error {
	if g == nil || g.redis == nil {
		return nil
	}
	if err := g.redis.Del(ctx, KeyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("op=redisguard.Release: %w", err)
	}
	return nil
}
