package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cab-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// INCR + PEXPIRE atômicos: a primeira request da janela define o TTL.
// Retorna {contador, pttl}.
var fixedWindowScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// RedisWindowStore é a janela fixa compartilhada entre réplicas do gateway.
//
// A janela começa na primeira request da chave e expira pelo TTL do Redis, então
// a expiração das chaves ociosas fica a cargo do próprio Redis. O `now` recebido
// só é usado para calcular ResetAt.
type RedisWindowStore struct {
	rdb    redis.UniversalClient
	prefix string
	size   time.Duration
	max    int
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisWindowStore(rdb redis.UniversalClient, size time.Duration, max int, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "ratelimit:window",
		size:   size,
		max:    max,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Window() time.Duration { return s.size }
func (s *RedisWindowStore) Max() int              { return s.max }

// Admit implementa domain.LimiterStore.
func (s *RedisWindowStore) Admit(ctx context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	res, err := fixedWindowScript.Run(ctx, s.rdb, []string{s.prefix + ":" + string(key)}, s.size.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("redis window: %w", err)
	}
	if len(res) != 2 {
		return domain.Decision{}, fmt.Errorf("redis window: unexpected reply %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	dec := domain.Decision{Limit: s.max, ResetAt: now.Add(ttl)}
	if count > s.max {
		dec.RetryAfter = ttl
		return dec, nil
	}
	dec.Allowed = true
	dec.Remaining = s.max - count
	return dec, nil
}
