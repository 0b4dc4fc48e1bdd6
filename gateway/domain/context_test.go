package domain

import (
	"net/http"
	"testing"
	"time"
)

func TestConsumer_EffectiveTier(t *testing.T) {
	if got := (Consumer{}).EffectiveTier(); got != TierAnonymous {
		t.Fatalf("expected anonymous default, got %q", got)
	}
	if (Consumer{}).Known() {
		t.Fatalf("expected zero consumer to be unknown")
	}
	c := Consumer{ID: "c1", Tier: TierPremium}
	if !c.Known() || c.EffectiveTier() != TierPremium {
		t.Fatalf("unexpected consumer %+v", c)
	}
}

func TestRouteRule_Supports(t *testing.T) {
	open := &RouteRule{}
	if !open.Supports("v1") || !open.Supports("v9") {
		t.Fatalf("expected empty version set to accept any version")
	}

	scoped := &RouteRule{Versions: []string{"v2"}}
	if scoped.Supports("v1") {
		t.Fatalf("expected v1 to be unsupported")
	}
	if !scoped.Supports("v2") {
		t.Fatalf("expected v2 to be supported")
	}
}

func TestRequestContext_FinishRunsDeferredLIFO(t *testing.T) {
	rc := NewRequestContext(http.MethodGet, "/x", "10.0.0.1")

	var order []int
	rc.Defer(func() { order = append(order, 1) })
	rc.Defer(func() { order = append(order, 2) })
	rc.Finish()

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected LIFO release order, got %v", order)
	}

	// Finish de novo não reexecuta
	rc.Finish()
	if len(order) != 2 {
		t.Fatalf("expected deferred functions to run once, got %v", order)
	}
}

func TestReject_Constructors(t *testing.T) {
	if rej := RateLimited(2 * time.Second); rej.Status != http.StatusTooManyRequests || rej.RetryAfter != 2*time.Second {
		t.Fatalf("unexpected rate limited reject %+v", rej)
	}
	if rej := CircuitOpen(time.Second); rej.Status != http.StatusServiceUnavailable || rej.Code != CodeCircuitOpen {
		t.Fatalf("unexpected circuit open reject %+v", rej)
	}
	if rej := UpstreamTimeout(); rej.Status != http.StatusGatewayTimeout {
		t.Fatalf("unexpected timeout reject %+v", rej)
	}
	if rej := ClientClosed(); rej.Status != 499 || rej.Code != CodeClientClosedRequest {
		t.Fatalf("unexpected client closed reject %+v", rej)
	}
}
