package infra

import (
	"context"
	"sync"
	"time"

	"edu-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// BucketStore é a alternativa token-bucket (x/time/rate) com cache por chave
// e limpeza periódica. Suaviza rajadas melhor que janela fixa, mas não sabe
// dizer exatamente quando a "janela" fecha: o RetryAfter é o configurado.
type BucketStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*bucketEntry
	retryAfter   time.Duration
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	rule     domain.Rule
	lastSeen time.Time
}

type BucketOption func(*BucketStore)

func WithRetryAfter(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.retryAfter = d }
}

func WithIdleTTL(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.idleTTL = d }
}

func WithBucketCleanupEvery(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.cleanupEvery = d }
}

func NewBucketStore(opts ...BucketOption) *BucketStore {
	s := &BucketStore{
		entries:      make(map[domain.Key]*bucketEntry),
		retryAfter:   1 * time.Second,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take traduz a regra de janela para um bucket equivalente: reabastece
// Limit/Window por segundo com burst igual ao Limit. Se a regra da chave
// mudou (override novo na config), o limiter é recriado.
func (s *BucketStore) Take(_ context.Context, key domain.Key, rule domain.Rule) (domain.Decision, error) {
	now := time.Now()

	s.mu.Lock()
	ent, ok := s.entries[key]
	if !ok || ent.rule != rule {
		rps := float64(rule.Limit) / rule.Window.Seconds()
		ent = &bucketEntry{
			lim:  rate.NewLimiter(rate.Limit(rps), rule.Limit),
			rule: rule,
		}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	lim := ent.lim
	s.mu.Unlock()

	if lim.Allow() {
		return domain.Decision{
			Allowed:   true,
			Limit:     rule.Limit,
			Remaining: int(lim.Tokens()),
		}, nil
	}
	return domain.Decision{
		Allowed:    false,
		Limit:      rule.Limit,
		Remaining:  0,
		RetryAfter: s.retryAfter,
	}, nil
}

func (s *BucketStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *BucketStore) StartJanitor(ctx context.Context) {
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
