package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"edu-gateway/middleware/ratelimit/domain"
)

// fakeStore registra as chaves consultadas e responde conforme o mapa deny.
type fakeStore struct {
	takes []string
	rules map[domain.Key]domain.Rule
	deny  map[domain.Key]bool
	err   error
}

func (f *fakeStore) Take(_ context.Context, key domain.Key, rule domain.Rule) (domain.Decision, error) {
	if f.err != nil {
		return domain.Decision{}, f.err
	}
	f.takes = append(f.takes, string(key))
	if f.rules == nil {
		f.rules = make(map[domain.Key]domain.Rule)
	}
	f.rules[key] = rule
	if f.deny[key] {
		return domain.Decision{Allowed: false, Limit: rule.Limit, RetryAfter: time.Second}, nil
	}
	return domain.Decision{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit - 1}, nil
}

func baseRules() Rules {
	return Rules{
		Global: domain.Rule{Limit: 60, Window: time.Minute},
		IP:     domain.Rule{Limit: 120, Window: time.Minute},
		PerTier: map[string]domain.Rule{
			"premium": {Limit: 600, Window: time.Minute},
		},
		PerConsumer: map[string]domain.Rule{
			"vip": {Limit: 1000, Window: time.Minute},
		},
	}
}

func TestRules_ResolvePrecedence(t *testing.T) {
	rs := baseRules()
	route := domain.Rule{Limit: 30, Window: time.Minute}

	// 1) override do consumidor vence tudo
	if r := rs.Resolve("vip", "premium", route); r.Limit != 1000 {
		t.Fatalf("expected consumer override to win, got limit %d", r.Limit)
	}
	// 2) tier vence o override da rota
	if r := rs.Resolve("other", "premium", route); r.Limit != 600 {
		t.Fatalf("expected tier rule to win, got limit %d", r.Limit)
	}
	// 3) rota vence o global
	if r := rs.Resolve("other", "standard", route); r.Limit != 30 {
		t.Fatalf("expected route override to win, got limit %d", r.Limit)
	}
	// 4) global é o fallback
	if r := rs.Resolve("other", "standard", domain.Rule{}); r.Limit != 60 {
		t.Fatalf("expected global rule, got limit %d", r.Limit)
	}
}

func TestService_ConsultsBothPartitions(t *testing.T) {
	store := &fakeStore{}
	svc := Service{Store: store, Rules: baseRules()}

	v, err := svc.Decide(context.Background(), "c1", "standard", "10.0.0.1", "/users/{id}", domain.Rule{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Allowed {
		t.Fatalf("expected request to be allowed")
	}
	if len(store.takes) != 2 {
		t.Fatalf("expected both partitions to be consulted, got %v", store.takes)
	}
	if store.takes[0] != "ip:10.0.0.1:/users/{id}" {
		t.Fatalf("unexpected ip key %q", store.takes[0])
	}
	if store.takes[1] != "consumer:c1:/users/{id}" {
		t.Fatalf("unexpected consumer key %q", store.takes[1])
	}
}

func TestService_AnonymousFallsBackToIPSubject(t *testing.T) {
	store := &fakeStore{}
	svc := Service{Store: store, Rules: baseRules()}

	if _, err := svc.Decide(context.Background(), "", "anonymous", "10.0.0.9", "/orders", domain.Rule{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// sem API key, o IP vira o sujeito da partição de consumidor
	if store.takes[1] != "consumer:10.0.0.9:/orders" {
		t.Fatalf("expected ip-backed consumer key, got %q", store.takes[1])
	}
}

func TestService_IPBlockSkipsConsumerPartition(t *testing.T) {
	store := &fakeStore{deny: map[domain.Key]bool{
		"ip:10.0.0.1:/users": true,
	}}
	svc := Service{Store: store, Rules: baseRules()}

	v, err := svc.Decide(context.Background(), "c1", "standard", "10.0.0.1", "/users", domain.Rule{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Allowed {
		t.Fatalf("expected block from ip partition")
	}
	if v.Partition != "ip" {
		t.Fatalf("expected partition ip, got %q", v.Partition)
	}
	// o slot de consumidor não pode ser consumido quando o IP já bloqueou
	if len(store.takes) != 1 {
		t.Fatalf("expected a single take, got %v", store.takes)
	}
}

func TestService_ConsumerBlockReportsConsumerPartition(t *testing.T) {
	store := &fakeStore{deny: map[domain.Key]bool{
		"consumer:c1:/users": true,
	}}
	svc := Service{Store: store, Rules: baseRules()}

	v, err := svc.Decide(context.Background(), "c1", "standard", "10.0.0.1", "/users", domain.Rule{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Allowed {
		t.Fatalf("expected block from consumer partition")
	}
	if v.Partition != "consumer" {
		t.Fatalf("expected partition consumer, got %q", v.Partition)
	}
	if v.RetryAfter <= 0 {
		t.Fatalf("expected retry-after on block")
	}
}

func TestService_StoreErrorPropagates(t *testing.T) {
	store := &fakeStore{err: errors.New("redis down")}
	svc := Service{Store: store, Rules: baseRules()}

	if _, err := svc.Decide(context.Background(), "c1", "standard", "10.0.0.1", "/users", domain.Rule{}); err == nil {
		t.Fatalf("expected store error to propagate")
	}
}
