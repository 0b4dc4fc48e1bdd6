// Package gateway é o driver do pipeline: a lista fixa e ordenada de estágios
// que toda requisição atravessa antes do proxy.
//
// Fluxo: Identify → Route(version) → RateLimit → Validate → Concurrency →
// Invoke (embrulhado pelo breaker) → Transform. Qualquer estágio pode
// encerrar cedo (429, 400, 503...); o observador roda sempre, inclusive nos
// encerramentos, garantindo que nenhuma requisição fica sem registro.
//
// A ordem é decidida na montagem (cmd/gateway), não em runtime; registro
// dinâmico de plugin criaria uma classe inteira de bugs de ordenação que não
// precisamos ter.
package gateway
