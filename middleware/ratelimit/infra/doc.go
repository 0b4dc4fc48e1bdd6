// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: janela fixa por chave com shards de mutex
//   - RedisStore: janela fixa distribuída (INCR + EXPIRE)
//   - BucketStore: token bucket por chave usando golang.org/x/time/rate
package infra
