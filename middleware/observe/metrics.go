package observe

import (
	"net/http"

	"edu-gateway/middleware/circuit"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa os coletores Prometheus do gateway. Registry próprio (não o
// global) para os testes poderem criar instâncias independentes.
//
// Cuidado com cardinalidade: os labels usam o template normalizado da rota e
// a classe do desfecho, nunca o path cru nem a chave do cliente.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	rateLimited *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requisições por rota, versão e classe de desfecho.",
		}, []string{"route", "version", "outcome"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latência total da requisição no gateway.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Rejeições de rate limit por partição (consumer|ip).",
		}, []string{"partition"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Estado do breaker por upstream (0=closed 1=open 2=half_open).",
		}, []string{"upstream"}),
		breakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_breaker_transitions_total",
			Help: "Transições de estado do breaker por upstream.",
		}, []string{"upstream", "state"}),
	}
}

// Handler expõe o endpoint /metrics (listener administrativo).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RateLimited registra uma rejeição de rate limit.
func (m *Metrics) RateLimited(partition string) {
	m.rateLimited.WithLabelValues(partition).Inc()
}

// BreakerHook devolve o callback para o registry de breakers alimentar o
// gauge de estado e o contador de transições.
func (m *Metrics) BreakerHook() func(upstream string, s circuit.State) {
	return func(upstream string, s circuit.State) {
		m.breakerState.WithLabelValues(upstream).Set(float64(s))
		m.breakerTransitions.WithLabelValues(upstream, s.String()).Inc()
	}
}

func (m *Metrics) observe(route, version, outcome string, seconds float64) {
	m.requests.WithLabelValues(route, version, outcome).Inc()
	m.latency.WithLabelValues(route).Observe(seconds)
}
