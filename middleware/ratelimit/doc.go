// Package ratelimit fornece o estágio de rate limit do pipeline do gateway.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (precedência de regras, decisão nas duas
//     partições) sem net/http
//   - infra: implementações concretas dos contadores (janela fixa em memória,
//     janela fixa em Redis, token bucket)
//   - ratelimit (este pacote): o estágio que liga tudo ao pipeline HTTP
//
// Fluxo:
//
//  1. Resolve a regra aplicável (consumidor → tier → rota → global)
//  2. Consome um slot na partição de IP e na de consumidor
//  3. Se qualquer partição bloquear, sinaliza 429 com Retry-After
//  4. Caso contrário a requisição segue para a validação e o proxy
package ratelimit
