package infra

import (
	"context"
	"testing"
	"time"

	"edu-gateway/middleware/ratelimit/domain"
)

func TestBucketStore_BurstOneRejectsSecondImmediateTake(t *testing.T) {
	s := NewBucketStore(WithRetryAfter(2 * time.Second))
	// 1 por minuto: o burst inicial é 1 token
	rule := domain.Rule{Limit: 1, Window: 1 * time.Minute}

	dec, err := s.Take(context.Background(), "k", rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected first take to be allowed")
	}

	dec, _ = s.Take(context.Background(), "k", rule)
	if dec.Allowed {
		t.Fatalf("expected second immediate take to be rejected")
	}
	if dec.RetryAfter != 2*time.Second {
		t.Fatalf("expected configured retry-after, got %v", dec.RetryAfter)
	}
}

func TestBucketStore_RuleChangeRecreatesLimiter(t *testing.T) {
	s := NewBucketStore()

	// consome o único token da regra antiga
	old := domain.Rule{Limit: 1, Window: 1 * time.Minute}
	if dec, _ := s.Take(context.Background(), "k", old); !dec.Allowed {
		t.Fatalf("expected take under old rule to be allowed")
	}
	if dec, _ := s.Take(context.Background(), "k", old); dec.Allowed {
		t.Fatalf("expected old rule to be exhausted")
	}

	// regra nova (override da config): limiter recriado, com burst cheio
	fresh := domain.Rule{Limit: 5, Window: 1 * time.Minute}
	if dec, _ := s.Take(context.Background(), "k", fresh); !dec.Allowed {
		t.Fatalf("expected take under new rule to be allowed")
	}
}

func TestBucketStore_CleanupRemovesIdleEntries(t *testing.T) {
	s := NewBucketStore(WithIdleTTL(2 * time.Millisecond))
	rule := domain.Rule{Limit: 1, Window: 1 * time.Minute}

	if dec, _ := s.Take(context.Background(), "k", rule); !dec.Allowed {
		t.Fatalf("expected first take to be allowed")
	}

	time.Sleep(5 * time.Millisecond)
	s.Cleanup()

	// entrada recriada: o burst volta
	if dec, _ := s.Take(context.Background(), "k", rule); !dec.Allowed {
		t.Fatalf("expected take after cleanup to be allowed")
	}
}
