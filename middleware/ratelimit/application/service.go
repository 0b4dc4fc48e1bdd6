package application

import (
	"context"

	"edu-gateway/middleware/ratelimit/domain"
)

// Rules concentra a configuração de limites. A precedência na partição de
// consumidor é: override exato do consumidor → padrão do tier → override da
// rota → padrão global. A partição de IP tem regra própria.
type Rules struct {
	Global      domain.Rule
	PerTier     map[string]domain.Rule
	PerConsumer map[string]domain.Rule
	IP          domain.Rule
}

// Resolve aplica a precedência para a partição de consumidor.
// routeRule é o override da rota (zero = sem override).
func (rs Rules) Resolve(consumerID, tier string, routeRule domain.Rule) domain.Rule {
	if consumerID != "" {
		if r, ok := rs.PerConsumer[consumerID]; ok && !r.Zero() {
			return r
		}
	}
	if r, ok := rs.PerTier[tier]; ok && !r.Zero() {
		return r
	}
	if !routeRule.Zero() {
		return routeRule
	}
	return rs.Global
}

// ResolveIP retorna a regra da partição por endereço.
func (rs Rules) ResolveIP() domain.Rule {
	if !rs.IP.Zero() {
		return rs.IP
	}
	return rs.Global
}

// Verdict é a decisão combinada das duas partições, com a partição que
// bloqueou (para métricas).
type Verdict struct {
	domain.Decision
	Partition string
}

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Duas partições são consultadas e ambas precisam passar: a de consumidor
// (justiça entre tenants; anônimo cai para o IP como chave) e a de IP
// (abuso sem chave). A mais restritiva governa.
type Service struct {
	Store domain.Store
	Rules Rules
}

// Decide consome um slot em cada partição para (consumidor|IP, rota).
//
// Nota de ordem: a partição de IP é consultada primeiro; se ela bloquear, o
// slot de consumidor não é consumido. Se a de consumidor bloquear depois, o
// slot de IP já consumido não é devolvido (janela fixa não faz rollback).
func (s Service) Decide(ctx context.Context, consumerID, tier, ip, route string, routeRule domain.Rule) (Verdict, error) {
	ipRule := s.Rules.ResolveIP()
	ipDec, err := s.Store.Take(ctx, domain.Key("ip:"+ip+":"+route), ipRule)
	if err != nil {
		return Verdict{}, err
	}
	if !ipDec.Allowed {
		return Verdict{Decision: ipDec, Partition: "ip"}, nil
	}

	subject := consumerID
	if subject == "" {
		subject = ip
	}
	rule := s.Rules.Resolve(consumerID, tier, routeRule)
	dec, err := s.Store.Take(ctx, domain.Key("consumer:"+subject+":"+route), rule)
	if err != nil {
		return Verdict{}, err
	}
	if !dec.Allowed {
		return Verdict{Decision: dec, Partition: "consumer"}, nil
	}

	// Ambas passaram: reporta a decisão com menos saldo restante.
	if ipDec.Remaining < dec.Remaining {
		return Verdict{Decision: ipDec, Partition: "ip"}, nil
	}
	return Verdict{Decision: dec, Partition: "consumer"}, nil
}
