// Package observe registra toda requisição que passa pelo gateway, inclusive
// as que terminam cedo (429, 400, 503). Log estruturado via zerolog e
// métricas Prometheus; ambos são saída write-only, nada aqui decide nada.
package observe

import (
	"time"

	gw "edu-gateway/gateway/domain"

	"github.com/rs/zerolog"
)

type Observer struct {
	log     zerolog.Logger
	metrics *Metrics
}

func New(log zerolog.Logger, metrics *Metrics) *Observer {
	return &Observer{log: log, metrics: metrics}
}

// Observe é o único estágio garantido para toda requisição. Nunca propaga
// pânico nem erro: falha de observabilidade não pode afetar a resposta que
// já está pronta.
func (o *Observer) Observe(rc *gw.RequestContext, status int, code string, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Any("panic", r).Msg("observer panic swallowed")
		}
	}()

	outcome := Classify(status, code)
	if o.metrics != nil {
		o.metrics.observe(rc.Route, rc.Version, outcome, elapsed.Seconds())
	}

	evt := o.log.Info()
	if status >= 500 {
		evt = o.log.Warn()
	}
	evt.Str("request_id", rc.RequestID).
		Str("method", rc.Method).
		Str("route", rc.Route).
		Str("version", rc.Version).
		Str("client_ip", rc.ClientIP).
		Int("status", status).
		Str("outcome", outcome).
		Dur("elapsed", elapsed)
	if rc.Consumer.Known() {
		evt = evt.Str("consumer", rc.Consumer.ID).Str("tier", string(rc.Consumer.EffectiveTier()))
	}
	if rc.Upstream != "" {
		evt = evt.Str("upstream", rc.Upstream)
	}
	if code != "" {
		evt = evt.Str("code", code)
	}
	for k, v := range rc.Annotations {
		evt = evt.Any(k, v)
	}
	evt.Msg("request")
}

// Classify traduz (status, código) para a classe de desfecho das métricas.
func Classify(status int, code string) string {
	switch code {
	case gw.CodeRateLimitExceeded:
		return "rate_limited"
	case gw.CodeCircuitOpen:
		return "circuit_open"
	case gw.CodeUpstreamTimeout:
		return "upstream_timeout"
	case gw.CodeUpstreamUnreachable:
		return "upstream_error"
	case gw.CodeUnsupportedVersion, gw.CodeValidationFailed,
		gw.CodePayloadTooLarge, gw.CodeUnsupportedMediaType:
		return "rejected"
	case gw.CodeRouteNotFound:
		return "not_found"
	case gw.CodeConcurrencyExhausted:
		return "shed"
	case gw.CodeClientClosedRequest:
		return "client_closed"
	case "preflight":
		return "preflight"
	}
	if status >= 500 {
		return "upstream_error"
	}
	return "ok"
}
