// Package ratelimit enforces organization-wide send ceilings in Redis and
// paces sends per sending account in process.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OrgLimits caps how many messages one organization may send per window.
// Zero disables that window.
type OrgLimits struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
}

// Lua script for atomic multi-window check-and-increment. Every window is
// checked before any counter moves, so a denial leaves all counters as they
// were. A limit of 0 disables the window.
const orgLimitLuaScript = `
local increment = tonumber(ARGV[1])
for i = 1, #KEYS do
    local limit = tonumber(ARGV[1 + i])
    if limit > 0 then
        local current = tonumber(redis.call("GET", KEYS[i]) or "0")
        if current + increment > limit then
            return {0, i}
        end
    end
end
for i = 1, #KEYS do
    local ttl = tonumber(ARGV[1 + #KEYS + i])
    local v = redis.call("INCRBY", KEYS[i], increment)
    if v == increment then
        redis.call("EXPIRE", KEYS[i], ttl)
    end
end
return {1, 0}
`

// Lua script that returns previously taken capacity without going negative.
const orgReleaseLuaScript = `
for i = 1, #KEYS do
    local current = tonumber(redis.call("GET", KEYS[i]) or "0")
    if current > 0 then
        redis.call("DECRBY", KEYS[i], 1)
    end
end
return 1
`

var windowNames = []string{"minute", "hour", "day"}

// OrgLimiter implements per-organization ceilings with fixed windows in Redis.
type OrgLimiter struct {
	redis         *redis.Client
	limits        OrgLimits
	prefix        string
	now           func() time.Time
	limitScript   *redis.Script
	releaseScript *redis.Script
}

// NewOrgLimiter creates an organization limiter with pre-compiled Lua scripts.
func NewOrgLimiter(client *redis.Client, limits OrgLimits) *OrgLimiter {
	return &OrgLimiter{
		redis:         client,
		limits:        limits,
		prefix:        "outreach:orglimit",
		now:           time.Now,
		limitScript:   redis.NewScript(orgLimitLuaScript),
		releaseScript: redis.NewScript(orgReleaseLuaScript),
	}
}

func (l *OrgLimiter) keys(orgID string) []string {
	now := l.now().UTC()
	return []string{
		fmt.Sprintf("%s:%s:m:%s", l.prefix, orgID, now.Format("200601021504")),
		fmt.Sprintf("%s:%s:h:%s", l.prefix, orgID, now.Format("2006010215")),
		fmt.Sprintf("%s:%s:d:%s", l.prefix, orgID, now.Format("20060102")),
	}
}

// Allow atomically takes one send from every window. When denied it reports
// which window is exhausted.
func (l *OrgLimiter) Allow(ctx context.Context, orgID string) (bool, string, error) {
	args := []interface{}{
		1,
		l.limits.PerMinute, l.limits.PerHour, l.limits.PerDay,
		int((2 * time.Minute).Seconds()), int((2 * time.Hour).Seconds()), int((48 * time.Hour).Seconds()),
	}
	res, err := l.limitScript.Run(ctx, l.redis, l.keys(orgID), args...).Int64Slice()
	if err != nil {
		return false, "", fmt.Errorf("org rate limit check: %w", err)
	}
	if len(res) < 2 {
		return false, "", fmt.Errorf("org rate limit check: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return true, "", nil
	}
	window := "unknown"
	if i := int(res[1]) - 1; i >= 0 && i < len(windowNames) {
		window = windowNames[i]
	}
	return false, window, nil
}

// Release gives back one send taken by Allow, used when the send did not
// happen after all.
func (l *OrgLimiter) Release(ctx context.Context, orgID string) error {
	if err := l.releaseScript.Run(ctx, l.redis, l.keys(orgID)).Err(); err != nil {
		return fmt.Errorf("org rate limit release: %w", err)
	}
	return nil
}
