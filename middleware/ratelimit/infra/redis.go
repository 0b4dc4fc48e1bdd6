package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edu-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore é a variante de janela fixa para múltiplas instâncias do
// gateway: o contador vive no Redis, então todas as réplicas enxergam o
// mesmo bucket.
//
// A chave embute o início da janela; INCR é atômico no servidor, então a
// verificação-e-incremento não tem corrida entre instâncias. O EXPIRE de 2x
// a janela garante memória limitada sem GC próprio.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Take(ctx context.Context, key domain.Key, rule domain.Rule) (domain.Decision, error) {
	now := time.Now()
	ws := now.Truncate(rule.Window)
	k := fmt.Sprintf("%s:%s:%d", s.prefix, key, ws.Unix())

	pipe := s.rdb.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Decision{}, err
	}

	count := int(incr.Val())
	if count <= rule.Limit {
		return domain.Decision{
			Allowed:   true,
			Limit:     rule.Limit,
			Remaining: rule.Limit - count,
		}, nil
	}

	// O INCR acima de Limit não devolve o excedente: a janela fecha e a
	// chave morre sozinha. Só não contamos como consumo permitido.
	return domain.Decision{
		Allowed:    false,
		Limit:      rule.Limit,
		Remaining:  0,
		RetryAfter: ws.Add(rule.Window).Sub(now),
	}, nil
}
