// Package domain define os tipos de domínio do pipeline do gateway.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar o contrato
// entre os estágios (contexto da requisição, regra de rota, rejeição)
// de detalhes de infraestrutura.
package domain
