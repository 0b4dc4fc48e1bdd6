package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Rule descreve o limite aplicável a uma chave: Limit requisições por Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) Zero() bool { return r.Limit == 0 && r.Window == 0 }

// Decision é o resultado de um Take.
//
// RetryAfter só é preenchido quando bloqueia: é quanto falta para a janela
// corrente fechar (vira o header Retry-After).
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Store é o contador concorrente por chave. Take verifica E consome em uma
// única operação atômica por bucket: nunca ler-e-depois-escrever em passos
// separados, senão chamadas concorrentes estouram o limite.
//
// Implementações: janela fixa em memória (sharded), janela fixa em Redis
// (multi-instância) e token bucket (x/time/rate), na camada infra.
type Store interface {
	Take(ctx context.Context, key Key, rule Rule) (Decision, error)
}
