package infra

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"edu-gateway/middleware/ratelimit/domain"
)

const memoryShards = 64

// MemoryStore é a implementação padrão: janela fixa por chave, em memória.
//
// O mapa é particionado em shards com mutex próprio para que tráfego de
// chaves não relacionadas não serialize; um lock global viraria gargalo
// com muitas goroutines disputando o mesmo store.
type MemoryStore struct {
	shards       [memoryShards]*memoryShard
	cleanupEvery time.Duration
}

type memoryShard struct {
	mu      sync.Mutex
	buckets map[domain.Key]*memoryBucket
}

type memoryBucket struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

type MemoryOption func(*MemoryStore)

func WithCleanupEvery(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{cleanupEvery: 30 * time.Second}
	for i := range s.shards {
		s.shards[i] = &memoryShard{buckets: make(map[domain.Key]*memoryBucket)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) shard(key domain.Key) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%memoryShards]
}

// Take verifica e incrementa o bucket da chave em uma única seção crítica.
// O bucket é criado sob demanda e reiniciado in-place quando a janela vira.
func (s *MemoryStore) Take(_ context.Context, key domain.Key, rule domain.Rule) (domain.Decision, error) {
	now := time.Now()
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	if !ok {
		b = &memoryBucket{windowStart: now.Truncate(rule.Window), window: rule.Window}
		sh.buckets[key] = b
	}
	ws := now.Truncate(rule.Window)
	if ws.After(b.windowStart) || b.window != rule.Window {
		b.count = 0
		b.windowStart = ws
		b.window = rule.Window
	}

	if b.count < rule.Limit {
		b.count++
		return domain.Decision{
			Allowed:   true,
			Limit:     rule.Limit,
			Remaining: rule.Limit - b.count,
		}, nil
	}
	return domain.Decision{
		Allowed:    false,
		Limit:      rule.Limit,
		Remaining:  0,
		RetryAfter: b.windowStart.Add(b.window).Sub(now),
	}, nil
}

// Cleanup remove buckets cuja janela já fechou. Com o janitor rodando no
// período padrão, nenhum bucket sobrevive além de 2x a própria janela.
func (s *MemoryStore) Cleanup() {
	now := time.Now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, b := range sh.buckets {
			if !now.Before(b.windowStart.Add(b.window)) {
				delete(sh.buckets, k)
			}
		}
		sh.mu.Unlock()
	}
}

// StartJanitor inicia uma goroutine que limpa buckets expirados
// periodicamente. Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// Len conta os buckets ativos (para testes).
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}
