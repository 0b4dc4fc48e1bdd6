package ratelimit

import (
	"net/http"

	gw "edu-gateway/gateway/domain"
	"edu-gateway/middleware/ratelimit/application"
	"edu-gateway/middleware/ratelimit/domain"
)

// Options configura o estágio de rate limit do pipeline.
type Options struct {
	Service application.Service
	// OnReject é chamado quando uma partição bloqueia ("consumer" ou "ip").
	// Best-effort: usado para métricas, nunca altera a decisão.
	OnReject func(partition string)
	// AddHeaders expõe X-RateLimit-Limit/Remaining na resposta (via
	// anotações lidas pelo transformador).
	AddHeaders bool
}

type Stage struct {
	opts Options
}

func NewStage(opts Options) *Stage {
	return &Stage{opts: opts}
}

func (s *Stage) Name() string { return "ratelimit" }

// Handle consulta as duas partições e rejeita com 429 + Retry-After quando
// qualquer uma bloqueia. Erro de store (ex: Redis fora) é fail-open: o
// gateway anota e deixa passar em vez de derrubar tráfego legítimo.
func (s *Stage) Handle(r *http.Request, rc *gw.RequestContext) *gw.Reject {
	var routeRule domain.Rule
	if rc.Rule != nil && rc.Rule.RateLimit > 0 {
		routeRule = domain.Rule{Limit: rc.Rule.RateLimit, Window: rc.Rule.RateWindow}
	}

	v, err := s.opts.Service.Decide(
		r.Context(),
		rc.Consumer.ID,
		string(rc.Consumer.EffectiveTier()),
		rc.ClientIP,
		rc.Route,
		routeRule,
	)
	if err != nil {
		rc.Annotate("ratelimit_error", err.Error())
		return nil
	}

	if s.opts.AddHeaders {
		rc.Annotate(gw.AnnRateLimitLimit, v.Limit)
		rc.Annotate(gw.AnnRateLimitRemaining, v.Remaining)
	}

	if !v.Allowed {
		rc.Annotate("ratelimit_partition", v.Partition)
		if s.opts.OnReject != nil {
			s.opts.OnReject(v.Partition)
		}
		return gw.RateLimited(v.RetryAfter)
	}
	return nil
}
