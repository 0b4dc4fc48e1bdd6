package circuit

import (
	"testing"
	"time"
)

func TestBreaker_OpensExactlyAtThreshold(t *testing.T) {
	b := New(Options{FailureThreshold: 3, FailureWindow: time.Minute, RecoveryTimeout: time.Minute})

	b.OnFailure(false)
	b.OnFailure(false)
	if b.State() != StateClosed {
		t.Fatalf("expected closed below the threshold, got %s", b.State())
	}

	// terceira falha estoura o limiar
	b.OnFailure(false)
	if b.State() != StateOpen {
		t.Fatalf("expected open at the threshold, got %s", b.State())
	}
}

func TestBreaker_OpenRejectsWithRetryAfter(t *testing.T) {
	b := New(Options{FailureThreshold: 1, FailureWindow: time.Minute, RecoveryTimeout: time.Minute})
	b.OnFailure(false)

	probe, retryAfter, ok := b.Allow()
	if ok {
		t.Fatalf("expected open breaker to reject")
	}
	if probe {
		t.Fatalf("rejected call must not be a probe")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("expected retry-after within recovery timeout, got %v", retryAfter)
	}
}

func TestBreaker_SuccessInWindowDoesNotResetUntilWindowRolls(t *testing.T) {
	b := New(Options{FailureThreshold: 2, FailureWindow: 10 * time.Millisecond, RecoveryTimeout: time.Minute})

	b.OnFailure(false)
	// janela venceu sem estourar: contador zera na próxima observação
	time.Sleep(15 * time.Millisecond)
	b.OnFailure(false)
	if b.State() != StateClosed {
		t.Fatalf("expected failures in different windows not to accumulate, got %s", b.State())
	}

	b.OnFailure(false)
	if b.State() != StateOpen {
		t.Fatalf("expected two failures in the same window to open, got %s", b.State())
	}
}

func TestBreaker_RecoveryAdmitsLimitedProbes(t *testing.T) {
	b := New(Options{
		FailureThreshold: 1,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  5 * time.Millisecond,
		HalfOpenProbes:   2,
	})
	b.OnFailure(false)
	time.Sleep(10 * time.Millisecond)

	// duas sondas passam, a terceira espera
	p1, _, ok1 := b.Allow()
	p2, _, ok2 := b.Allow()
	_, _, ok3 := b.Allow()
	if !ok1 || !p1 || !ok2 || !p2 {
		t.Fatalf("expected two admitted probes, got (%v,%v) (%v,%v)", p1, ok1, p2, ok2)
	}
	if ok3 {
		t.Fatalf("expected third call to be rejected while probes are in flight")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", b.State())
	}
}

func TestBreaker_ProbeSuccessesCloseTheBreaker(t *testing.T) {
	b := New(Options{
		FailureThreshold:  1,
		FailureWindow:     time.Minute,
		RecoveryTimeout:   5 * time.Millisecond,
		HalfOpenProbes:    1,
		HalfOpenSuccesses: 2,
	})
	b.OnFailure(false)
	time.Sleep(10 * time.Millisecond)

	probe, _, ok := b.Allow()
	if !ok || !probe {
		t.Fatalf("expected probe to be admitted")
	}
	b.OnSuccess(probe)
	// um sucesso só não basta
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open after one success, got %s", b.State())
	}

	probe, _, ok = b.Allow()
	if !ok || !probe {
		t.Fatalf("expected second probe to be admitted")
	}
	b.OnSuccess(probe)
	if b.State() != StateClosed {
		t.Fatalf("expected closed after consecutive successes, got %s", b.State())
	}
}

func TestBreaker_ProbeFailureReopensImmediately(t *testing.T) {
	b := New(Options{
		FailureThreshold: 1,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  5 * time.Millisecond,
		HalfOpenProbes:   1,
	})
	b.OnFailure(false)
	time.Sleep(10 * time.Millisecond)

	probe, _, ok := b.Allow()
	if !ok || !probe {
		t.Fatalf("expected probe to be admitted")
	}
	b.OnFailure(probe)
	if b.State() != StateOpen {
		t.Fatalf("expected reopen on probe failure, got %s", b.State())
	}

	// reaberto agora: rejeita de novo até o próximo timeout
	if _, _, ok := b.Allow(); ok {
		t.Fatalf("expected reopened breaker to reject")
	}
}

func TestBreaker_CancelReleasesProbeSlot(t *testing.T) {
	b := New(Options{
		FailureThreshold: 1,
		FailureWindow:    time.Minute,
		RecoveryTimeout:  5 * time.Millisecond,
		HalfOpenProbes:   1,
	})
	b.OnFailure(false)
	time.Sleep(10 * time.Millisecond)

	probe, _, ok := b.Allow()
	if !ok || !probe {
		t.Fatalf("expected probe to be admitted")
	}
	// cliente desistiu: a vaga volta sem contar sucesso nem falha
	b.OnCancel(probe)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open after cancel, got %s", b.State())
	}

	if probe, _, ok := b.Allow(); !ok || !probe {
		t.Fatalf("expected probe slot to be available again")
	}
}

func TestRegistry_PerUpstreamIsolationAndOverrides(t *testing.T) {
	r := NewRegistry(
		Options{FailureThreshold: 1, FailureWindow: time.Minute, RecoveryTimeout: time.Minute},
		WithOverrides(map[string]Options{
			"orders": {FailureThreshold: 5, FailureWindow: time.Minute, RecoveryTimeout: time.Minute},
		}),
	)

	users := r.Get("users")
	orders := r.Get("orders")
	if users == orders {
		t.Fatalf("expected one breaker per upstream")
	}
	if r.Get("users") != users {
		t.Fatalf("expected same breaker on second lookup")
	}

	// abre o de users; o de orders não pode ser afetado
	users.OnFailure(false)
	if users.State() != StateOpen {
		t.Fatalf("expected users breaker to open")
	}
	orders.OnFailure(false)
	if orders.State() != StateClosed {
		t.Fatalf("expected orders breaker (threshold 5) to stay closed")
	}

	states := r.States()
	if states["users"] != StateOpen || states["orders"] != StateClosed {
		t.Fatalf("unexpected snapshot: %v", states)
	}
}
