// Package concurrency limita quantas requisições ficam em voo no gateway ao
// mesmo tempo. É a última proteção antes do proxy: se um upstream lento
// segurar requisições demais, o gateway rejeita o excedente em vez de
// acumular goroutines até esgotar recursos.
package concurrency

import (
	"context"
	"net/http"
	"time"

	gw "edu-gateway/gateway/domain"
)

// SlotPool representa um recurso com capacidade finita (ex: conexões
// concorrentes).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx
// encerrar. Ao adquirir, retorna uma função de release que deve ser chamada
// exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool simples baseado em channel com capacidade max.
func NewChanPool(max int) SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

type Options struct {
	Max int
	// AcquireTimeout <= 0 espera indefinidamente (até o ctx cancelar).
	AcquireTimeout time.Duration
	// RetryAfter sugerido na rejeição 503.
	RetryAfter time.Duration
}

type Stage struct {
	pool SlotPool
	opts Options
}

func NewStage(opts Options) *Stage {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 1 * time.Second
	}
	s := &Stage{opts: opts}
	if opts.Max > 0 {
		s.pool = NewChanPool(opts.Max)
	}
	return s
}

func (s *Stage) Name() string { return "concurrency" }

// Handle adquire uma vaga e registra a liberação no contexto da requisição;
// o driver libera quando a resposta terminar, em qualquer caminho.
func (s *Stage) Handle(r *http.Request, rc *gw.RequestContext) *gw.Reject {
	if s.pool == nil {
		return nil
	}

	ctx := r.Context()
	if s.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.pool.Acquire(ctx)
	if !ok {
		return gw.ConcurrencyExhausted(s.opts.RetryAfter)
	}
	rc.Defer(release)
	return nil
}
