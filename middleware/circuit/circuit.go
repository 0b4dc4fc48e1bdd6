// Package circuit implementa o circuit breaker por upstream.
//
// Máquina de estados closed → open → half_open. Em closed as falhas contam
// dentro de uma janela deslizante; estourou o limiar, abre. Aberto, rejeita
// sem tocar o upstream até o timeout de recuperação; depois deixa passar um
// número pequeno de sondas e só fecha com a quantidade configurada de
// sucessos consecutivos. Uma sonda falhando reabre na hora.
package circuit

import (
	"sync"
	"time"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

type Options struct {
	FailureThreshold  int
	FailureWindow     time.Duration
	RecoveryTimeout   time.Duration
	HalfOpenProbes    int
	HalfOpenSuccesses int
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.FailureWindow <= 0 {
		o.FailureWindow = 30 * time.Second
	}
	if o.RecoveryTimeout <= 0 {
		o.RecoveryTimeout = 10 * time.Second
	}
	if o.HalfOpenProbes <= 0 {
		o.HalfOpenProbes = 1
	}
	if o.HalfOpenSuccesses <= 0 {
		o.HalfOpenSuccesses = 1
	}
	return o
}

// Breaker é o estado de um upstream. Todas as transições acontecem sob o
// mutex do próprio breaker: requisições concorrentes podem observar e
// disparar uma transição ao mesmo tempo, e o teto de sondas em half_open
// precisa ser exato, não best-effort.
type Breaker struct {
	mu   sync.Mutex
	opts Options

	state          State
	failures       int
	windowStart    time.Time
	openedAt       time.Time
	probesInFlight int
	probeSuccesses int

	onChange func(State)
}

func New(opts Options) *Breaker {
	return &Breaker{opts: opts.withDefaults(), state: StateClosed}
}

// Allow decide se a chamada prossegue.
//
// ok=false: rejeita já, com retryAfter para o header. probe=true marca a
// chamada como sonda de half_open; o chamador é obrigado a reportar o
// desfecho (OnSuccess/OnFailure/OnCancel) para devolver a vaga.
func (b *Breaker) Allow() (probe bool, retryAfter time.Duration, ok bool) {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.rollWindow(now)
		return false, 0, true

	case StateOpen:
		remaining := b.openedAt.Add(b.opts.RecoveryTimeout).Sub(now)
		if remaining > 0 {
			return false, remaining, false
		}
		b.transition(StateHalfOpen)
		b.probesInFlight = 0
		b.probeSuccesses = 0
		fallthrough

	case StateHalfOpen:
		if b.probesInFlight < b.opts.HalfOpenProbes {
			b.probesInFlight++
			return true, 0, true
		}
		return false, b.opts.RecoveryTimeout, false
	}
	return false, 0, true
}

// OnSuccess registra uma chamada bem-sucedida.
func (b *Breaker) OnSuccess(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.releaseProbe()
		if b.state == StateHalfOpen {
			b.probeSuccesses++
			if b.probeSuccesses >= b.opts.HalfOpenSuccesses {
				b.failures = 0
				b.probeSuccesses = 0
				b.transition(StateClosed)
			}
		}
	}
}

// OnFailure registra uma falha (erro de transporte, timeout ou 5xx).
func (b *Breaker) OnFailure(probe bool) {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.releaseProbe()
		// Sonda falhou: reabre com openedAt novo, esteja o breaker em
		// half_open ou já reaberto por outra sonda.
		b.openedAt = now
		b.failures = 0
		if b.state != StateOpen {
			b.transition(StateOpen)
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.rollWindow(now)
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.openedAt = now
			b.transition(StateOpen)
		}
	case StateOpen, StateHalfOpen:
		// Conclusão tardia de uma chamada admitida antes da transição;
		// o estado corrente já reflete a saúde do upstream.
	}
}

// OnCancel devolve a vaga de sonda sem contar sucesso nem falha:
// desistência do cliente não diz nada sobre o upstream.
func (b *Breaker) OnCancel(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseProbe()
}

// State é o estado corrente (para anotações e métricas).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// rollWindow zera o contador quando a janela de falhas venceu sem estourar
// o limiar. Chamar com o mutex preso.
func (b *Breaker) rollWindow(now time.Time) {
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= b.opts.FailureWindow {
		b.windowStart = now
		b.failures = 0
	}
}

func (b *Breaker) releaseProbe() {
	if b.probesInFlight > 0 {
		b.probesInFlight--
	}
}

func (b *Breaker) transition(to State) {
	b.state = to
	if b.onChange != nil {
		// Fora de banda: o hook não pode reentrar no breaker.
		go b.onChange(to)
	}
}
